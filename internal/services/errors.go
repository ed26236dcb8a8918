// Package services defines the application logic that sits between the HTTP
// handlers and the repository layer. This file centralizes service-level error
// values so they can be returned consistently and checked by callers.
//
// Translation into HTTP status codes is performed at the handler layer.
package services

import "errors"

var (
	// ErrIncidentNotFound indicates that the requested incident does not exist.
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrIncidentsDisabled is returned when the service has no database.
	ErrIncidentsDisabled = errors.New("incident storage is disabled")
)
