// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Incident
// model.
//
// All functions are context-aware and accept a *gorm.DB handle. They follow
// the thin repository approach: CRUD persistence and query composition only.
//
// Error semantics:
//   - When an incident is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-errorcatcher/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateIncident inserts inc, assigning a UUID and a UTC CreatedAt when they
// are unset. It returns the persisted row.
func CreateIncident(ctx context.Context, db *gorm.DB, inc *domain.Incident) (*domain.Incident, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(inc).Error; err != nil {
		return nil, err
	}
	return inc, nil
}

// GetIncident fetches a single incident by id, or ErrNotFound.
func GetIncident(ctx context.Context, db *gorm.DB, id string) (*domain.Incident, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	var inc domain.Incident
	if err := db.WithContext(ctx).Where("id = ?", id).First(&inc).Error; err != nil {
		return nil, err
	}
	return &inc, nil
}

// CountIncidents returns the number of stored incidents.
func CountIncidents(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Incident{}).Count(&total).Error
	return total, err
}

// ListIncidentsPage returns a page of incidents, most recent first.
// The caller computes offset and limit (e.g. (page-1)*pageSize).
func ListIncidentsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Incident, error) {
	var out []domain.Incident
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// IncidentRecorder persists incidents reported by the error handler.
type IncidentRecorder struct {
	DB *gorm.DB
}

// Record implements errorhandler.Recorder.
func (r IncidentRecorder) Record(ctx context.Context, inc *domain.Incident) error {
	_, err := CreateIncident(ctx, r.DB, inc)
	return err
}
