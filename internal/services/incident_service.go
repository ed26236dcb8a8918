// Package services – IncidentService
//
// IncidentService exposes the failures recorded by the error handler. It is
// read-only: incidents are written by repo.IncidentRecorder at the time a
// failure is caught, never through the API.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-errorcatcher/internal/domain"
	"github.com/tbourn/go-errorcatcher/internal/repo"
)

// IncidentRepo defines the repository contract required by IncidentService.
type IncidentRepo interface {
	GetIncident(ctx context.Context, db *gorm.DB, id string) (*domain.Incident, error)
	CountIncidents(ctx context.Context, db *gorm.DB) (int64, error)
	ListIncidentsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Incident, error)
	IncidentsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error)
}

// GormIncidentRepo adapts the repo package functions to IncidentRepo.
type GormIncidentRepo struct{}

func (GormIncidentRepo) GetIncident(ctx context.Context, db *gorm.DB, id string) (*domain.Incident, error) {
	return repo.GetIncident(ctx, db, id)
}

func (GormIncidentRepo) CountIncidents(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountIncidents(ctx, db)
}

func (GormIncidentRepo) ListIncidentsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Incident, error) {
	return repo.ListIncidentsPage(ctx, db, offset, limit)
}

func (GormIncidentRepo) IncidentsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.IncidentsStats(ctx, db)
}

// IncidentService lists and fetches recorded incidents.
type IncidentService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the incident repository used by this service.
	Repo IncidentRepo
}

// NewIncidentService constructs an IncidentService. A nil repository selects
// GormIncidentRepo.
func NewIncidentService(db *gorm.DB, r IncidentRepo) *IncidentService {
	if r == nil {
		r = GormIncidentRepo{}
	}
	return &IncidentService{DB: db, Repo: r}
}

// ListPage returns a page of incidents, most recent first, and the total
// count. Invalid page or pageSize values fall back to 1 and 20.
func (s *IncidentService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Incident, int64, error) {
	ctx, span := otel.Tracer("services/IncidentService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if s.DB == nil {
		return nil, 0, ErrIncidentsDisabled
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountIncidents(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Incident{}, 0, nil
	}

	items, err := s.Repo.ListIncidentsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Get returns a single incident, or ErrIncidentNotFound.
func (s *IncidentService) Get(ctx context.Context, id string) (*domain.Incident, error) {
	ctx, span := otel.Tracer("services/IncidentService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("incident.id", id)),
	)
	defer span.End()

	if s.DB == nil {
		return nil, ErrIncidentsDisabled
	}
	inc, err := s.Repo.GetIncident(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIncidentNotFound
		}
		return nil, err
	}
	return inc, nil
}

// Stats returns the incident count and the newest CreatedAt (nil when the
// table is empty). Handlers derive list ETags from it.
func (s *IncidentService) Stats(ctx context.Context) (int64, *time.Time, error) {
	if s.DB == nil {
		return 0, nil, ErrIncidentsDisabled
	}
	return s.Repo.IncidentsStats(ctx, s.DB)
}
