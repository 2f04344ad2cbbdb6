package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/events"
	"github.com/clinrota/rota-api/internal/models"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

type absenceRepository interface {
	ListForPerson(ctx context.Context, personID string) ([]models.Absence, error)
	ListInRange(ctx context.Context, dr models.DateRange) ([]models.Absence, error)
	FindByID(ctx context.Context, id string) (*models.Absence, error)
	Create(ctx context.Context, absence *models.Absence) error
	Update(ctx context.Context, absence *models.Absence) error
	Delete(ctx context.Context, id string) error
}

type absenceAssignmentRepository interface {
	ListForPerson(ctx context.Context, personID string, dr models.DateRange) ([]models.Assignment, error)
}

// UpsertAbsenceRequest holds payload for absence writes.
type UpsertAbsenceRequest struct {
	PersonID  string             `json:"person_id" validate:"required"`
	StartDate time.Time          `json:"start_date" validate:"required"`
	EndDate   time.Time          `json:"end_date" validate:"required"`
	Kind      models.AbsenceKind `json:"kind" validate:"required,oneof=VACATION SICK CONFERENCE LOA"`
	Blocking  bool               `json:"blocking"`
	Approved  bool               `json:"approved"`
}

// AbsenceService manages absence intervals. Approving a blocking absence
// over existing assignments is allowed; the clash surfaces as a conflict,
// not a rejected request, because leave is often entered after the fact.
type AbsenceService struct {
	repo        absenceRepository
	assignments absenceAssignmentRepository
	publisher   *events.Publisher
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAbsenceService constructs the absence service.
func NewAbsenceService(repo absenceRepository, assignments absenceAssignmentRepository, publisher *events.Publisher, validate *validator.Validate, logger *zap.Logger) *AbsenceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AbsenceService{repo: repo, assignments: assignments, publisher: publisher, validator: validate, logger: logger}
}

// ListForPerson returns a person's absences.
func (s *AbsenceService) ListForPerson(ctx context.Context, personID string) ([]models.Absence, error) {
	absences, err := s.repo.ListForPerson(ctx, personID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absences")
	}
	return absences, nil
}

// Create registers an absence and reports any assignments it now overlaps.
func (s *AbsenceService) Create(ctx context.Context, actor string, req UpsertAbsenceRequest) (*models.Absence, []models.Assignment, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, nil, err
	}
	absence := &models.Absence{
		PersonID:  req.PersonID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Kind:      req.Kind,
		Blocking:  req.Blocking,
		Approved:  req.Approved,
	}
	if err := s.repo.Create(ctx, absence); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create absence")
	}
	overlapping, err := s.overlapping(ctx, absence)
	if err != nil {
		return nil, nil, err
	}
	s.publisher.Emit(ctx, actor, "absence", absence.ID, "created", absence)
	return absence, overlapping, nil
}

// Update modifies an absence and reports any assignments it now overlaps.
func (s *AbsenceService) Update(ctx context.Context, actor, id string, req UpsertAbsenceRequest) (*models.Absence, []models.Assignment, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, nil, err
	}
	absence, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "absence not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load absence")
	}
	absence.StartDate = req.StartDate
	absence.EndDate = req.EndDate
	absence.Kind = req.Kind
	absence.Blocking = req.Blocking
	absence.Approved = req.Approved
	if err := s.repo.Update(ctx, absence); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "absence not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update absence")
	}
	overlapping, err := s.overlapping(ctx, absence)
	if err != nil {
		return nil, nil, err
	}
	s.publisher.Emit(ctx, actor, "absence", absence.ID, "updated", absence)
	return absence, overlapping, nil
}

// Delete removes an absence.
func (s *AbsenceService) Delete(ctx context.Context, actor, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "absence not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete absence")
	}
	s.publisher.Emit(ctx, actor, "absence", id, "deleted", nil)
	return nil
}

func (s *AbsenceService) checkRequest(req UpsertAbsenceRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid absence payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date precedes start_date")
	}
	return nil
}

// overlapping lists the person's assignments inside a blocking approved
// absence window. An empty result means no follow-up needed.
func (s *AbsenceService) overlapping(ctx context.Context, absence *models.Absence) ([]models.Assignment, error) {
	if !absence.BlocksScheduling() {
		return nil, nil
	}
	assignments, err := s.assignments.ListForPerson(ctx, absence.PersonID, models.DateRange{Start: absence.StartDate, End: absence.EndDate})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check overlapping assignments")
	}
	return assignments, nil
}
