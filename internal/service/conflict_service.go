package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/conflict"
	"github.com/clinrota/rota-api/internal/models"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

type conflictAssignmentRepository interface {
	ListInRange(ctx context.Context, dr models.DateRange) ([]models.Assignment, error)
}

type conflictAbsenceRepository interface {
	ListInRange(ctx context.Context, dr models.DateRange) ([]models.Absence, error)
}

// ConflictService surfaces scheduling conflicts over a window. Detection is
// read-only; resolution suggestions never mutate state.
type ConflictService struct {
	detector    *conflict.Detector
	assignments conflictAssignmentRepository
	absences    conflictAbsenceRepository
	people      compliancePersonRepository
	templates   complianceTemplateRepository
	logger      *zap.Logger
}

// NewConflictService constructs the conflict service.
func NewConflictService(
	detector *conflict.Detector,
	assignments conflictAssignmentRepository,
	absences conflictAbsenceRepository,
	people compliancePersonRepository,
	templates complianceTemplateRepository,
	logger *zap.Logger,
) *ConflictService {
	if detector == nil {
		detector = conflict.NewDetector(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{
		detector:    detector,
		assignments: assignments,
		absences:    absences,
		people:      people,
		templates:   templates,
		logger:      logger,
	}
}

// Detect runs all conflict detectors over the range.
func (s *ConflictService) Detect(ctx context.Context, dr models.DateRange) ([]models.Conflict, error) {
	if dr.End.Before(dr.Start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end precedes start")
	}
	scope, err := s.buildScope(ctx, dr)
	if err != nil {
		return nil, err
	}
	conflicts := s.detector.Detect(*scope)
	s.logger.Info("conflict scan finished",
		zap.Time("from", dr.Start),
		zap.Time("to", dr.End),
		zap.Int("conflicts", len(conflicts)),
	)
	return conflicts, nil
}

func (s *ConflictService) buildScope(ctx context.Context, dr models.DateRange) (*conflict.Scope, error) {
	assignments, err := s.assignments.ListInRange(ctx, dr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	absences, err := s.absences.ListInRange(ctx, dr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load absences")
	}
	peopleList, err := s.people.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load people")
	}
	templateList, err := s.templates.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load templates")
	}

	people := make(map[string]models.Person, len(peopleList))
	for _, p := range peopleList {
		people[p.ID] = p
	}
	templates := make(map[string]models.RotationTemplate, len(templateList))
	for _, t := range templateList {
		templates[t.ID] = t
	}
	return &conflict.Scope{
		Assignments: assignments,
		Absences:    absences,
		People:      people,
		Templates:   templates,
		Range:       dr,
	}, nil
}
