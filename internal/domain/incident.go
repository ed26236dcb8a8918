// Package domain defines the persistence models of the service. These types
// are mapped with GORM and shared by the repository and error-handling
// layers.
package domain

import "time"

// Incident is the stored trace of one failure caught by the error-catching
// middleware. It holds only what is needed to correlate a client report
// (request id) with server logs; the full stack stays in the logs.
//
// Fields:
//   - ID: UUID primary key.
//   - RequestID: correlation id echoed to the client (X-Request-ID).
//   - Type / Message: failure type tag and description.
//   - Runtime: true for Go runtime errors (nil dereference, bounds, ...).
//   - Method / Path: the request line that failed.
//   - CreatedAt: UTC time of the failure.
type Incident struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	RequestID string    `json:"request_id" gorm:"type:varchar(64);index:idx_incident_request"`
	Type      string    `json:"type"       gorm:"type:varchar(255);not null"`
	Message   string    `json:"message"    gorm:"type:text;not null"`
	Runtime   bool      `json:"runtime"    gorm:"not null;default:false"`
	Method    string    `json:"method"     gorm:"type:varchar(16)"`
	Path      string    `json:"path"       gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_incident_created"`
}

// TableName returns the database table name for Incident.
func (Incident) TableName() string { return "incidents" }
