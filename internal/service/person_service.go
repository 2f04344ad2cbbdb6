package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/events"
	"github.com/clinrota/rota-api/internal/models"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

type personRepository interface {
	List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error)
	FindByID(ctx context.Context, id string) (*models.Person, error)
	Create(ctx context.Context, person *models.Person) error
	Update(ctx context.Context, person *models.Person) error
	Archive(ctx context.Context, id string) error
	HasFutureAssignments(ctx context.Context, id string, from time.Time) (bool, error)
}

// CreatePersonRequest holds payload for registering a person.
type CreatePersonRequest struct {
	Name              string            `json:"name" validate:"required"`
	Role              models.PersonRole `json:"role" validate:"required,oneof=RESIDENT FACULTY"`
	Seniority         int               `json:"seniority" validate:"gte=0"`
	Specialties       []string          `json:"specialties"`
	MaxWeeklyHours    float64           `json:"max_weekly_hours" validate:"gte=0"`
	RequiredRestHours float64           `json:"required_rest_hours" validate:"gte=0"`
}

// UpdatePersonRequest holds payload for updating a person.
type UpdatePersonRequest struct {
	Name              string            `json:"name" validate:"required"`
	Role              models.PersonRole `json:"role" validate:"required,oneof=RESIDENT FACULTY"`
	Seniority         int               `json:"seniority" validate:"gte=0"`
	Specialties       []string          `json:"specialties"`
	MaxWeeklyHours    float64           `json:"max_weekly_hours" validate:"gte=0"`
	RequiredRestHours float64           `json:"required_rest_hours" validate:"gte=0"`
	Active            bool              `json:"active"`
}

// PersonService handles the people roster.
type PersonService struct {
	repo      personRepository
	publisher *events.Publisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPersonService constructs the person service.
func NewPersonService(repo personRepository, publisher *events.Publisher, validate *validator.Validate, logger *zap.Logger) *PersonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonService{repo: repo, publisher: publisher, validator: validate, logger: logger}
}

// List returns people and pagination metadata.
func (s *PersonService) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, *models.Pagination, error) {
	people, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list people")
	}
	return people, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one person.
func (s *PersonService) Get(ctx context.Context, id string) (*models.Person, error) {
	person, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	return person, nil
}

// Create registers a new person.
func (s *PersonService) Create(ctx context.Context, actor string, req CreatePersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid person payload")
	}
	person := &models.Person{
		Name:              req.Name,
		Role:              req.Role,
		Seniority:         req.Seniority,
		Specialties:       pq.StringArray(req.Specialties),
		MaxWeeklyHours:    req.MaxWeeklyHours,
		RequiredRestHours: req.RequiredRestHours,
		Active:            true,
	}
	if err := s.repo.Create(ctx, person); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create person")
	}
	s.publisher.Emit(ctx, actor, "person", person.ID, "created", person)
	return person, nil
}

// Update modifies an existing person.
func (s *PersonService) Update(ctx context.Context, actor, id string, req UpdatePersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid person payload")
	}
	person, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	person.Name = req.Name
	person.Role = req.Role
	person.Seniority = req.Seniority
	person.Specialties = pq.StringArray(req.Specialties)
	person.MaxWeeklyHours = req.MaxWeeklyHours
	person.RequiredRestHours = req.RequiredRestHours
	person.Active = req.Active
	if err := s.repo.Update(ctx, person); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update person")
	}
	s.publisher.Emit(ctx, actor, "person", person.ID, "updated", person)
	return person, nil
}

// Archive soft-deletes a person. People holding future assignments must be
// unassigned first so coverage gaps surface explicitly.
func (s *PersonService) Archive(ctx context.Context, actor, id string) error {
	busy, err := s.repo.HasFutureAssignments(ctx, id, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignments")
	}
	if busy {
		return appErrors.Clone(appErrors.ErrConflict, "person holds future assignments")
	}
	if err := s.repo.Archive(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive person")
	}
	s.publisher.Emit(ctx, actor, "person", id, "archived", nil)
	return nil
}
