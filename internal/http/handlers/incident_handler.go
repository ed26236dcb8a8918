// Incident HTTP handlers.
//
// This file exposes read-only REST endpoints over the failures recorded by
// the error handler:
//   - GET /incidents       (list, paginated, ETag support)
//   - GET /incidents/{id}  (single incident)
//
// Handlers are transport-thin: they validate input, call the service and
// translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-errorcatcher/internal/domain"
	"github.com/tbourn/go-errorcatcher/internal/services"
	"github.com/tbourn/go-errorcatcher/internal/utils"
)

// IncidentService defines the incident queries consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type IncidentService interface {
	// ListPage returns a page of incidents, newest first, and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Incident, int64, error)
	// Get returns one incident or services.ErrIncidentNotFound.
	Get(ctx context.Context, id string) (*domain.Incident, error)
	// Stats returns the incident count and newest CreatedAt (nil if none).
	Stats(ctx context.Context) (int64, *time.Time, error)
}

// Handlers groups the HTTP endpoints of the API.
type Handlers struct {
	incSvc IncidentService
}

// New constructs a Handlers instance bound to the given service.
func New(incSvc IncidentService) *Handlers {
	return &Handlers{incSvc: incSvc}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListIncidentsResponse wraps a page of incidents and pagination information.
type ListIncidentsResponse struct {
	Incidents  []domain.Incident `json:"incidents"`
	Pagination Pagination        `json:"pagination"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = max(utils.AtoiDefault(c.Query("page"), defaultPage), 1)
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// ListIncidents returns a page of incidents. A weak ETag derived from the
// row count and the newest CreatedAt is sent, and If-None-Match may yield 304.
func (h *Handlers) ListIncidents(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort; a stats error just skips it).
	if count, latest, err := h.incSvc.Stats(ctx); err == nil {
		var ts int64
		if latest != nil {
			ts = latest.UnixNano()
		}
		if notModified(c, fmt.Sprintf(`W/"incidents:%d:%d:%d:%d"`, count, ts, page, pageSize)) {
			return
		}
	}

	items, total, err := h.incSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrIncidentsDisabled) {
			fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListIncidentsResponse{
		Incidents: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetIncident returns a single incident by its UUID.
func (h *Handlers) GetIncident(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "incident id must be a UUID")
		return
	}

	inc, err := h.incSvc.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrIncidentNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "incident not found")
	case errors.Is(err, services.ErrIncidentsDisabled):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeGetFailed, err.Error())
	default:
		ok(c, http.StatusOK, inc)
	}
}
