package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/events"
	"github.com/clinrota/rota-api/internal/models"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

type rotationTemplateRepository interface {
	List(ctx context.Context) ([]models.RotationTemplate, error)
	FindByID(ctx context.Context, id string) (*models.RotationTemplate, error)
	Create(ctx context.Context, tpl *models.RotationTemplate) error
	Update(ctx context.Context, tpl *models.RotationTemplate) error
	InUse(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// UpsertRotationTemplateRequest holds payload for template writes.
type UpsertRotationTemplateRequest struct {
	Name              string              `json:"name" validate:"required"`
	Kind              models.ActivityKind `json:"kind" validate:"required,oneof=CLINICAL CALL CLINIC ELECTIVE ADMIN"`
	MinPerSlot        int                 `json:"min_per_slot" validate:"gte=0"`
	MaxPerSlot        int                 `json:"max_per_slot" validate:"gte=0"`
	RequiredSpecialty *string             `json:"required_specialty"`
	SupervisionRatio  int                 `json:"supervision_ratio" validate:"gte=0"`
	SeniorityFloor    int                 `json:"seniority_floor" validate:"gte=0"`
	LeaveEligible     bool                `json:"leave_eligible"`
	IncludesWeekends  bool                `json:"includes_weekends"`
	HoursPerSlot      float64             `json:"hours_per_slot" validate:"gte=0"`
	PostCallRestHours float64             `json:"post_call_rest_hours" validate:"gte=0"`
}

// RotationService manages rotation templates.
type RotationService struct {
	repo      rotationTemplateRepository
	publisher *events.Publisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRotationService constructs the rotation service.
func NewRotationService(repo rotationTemplateRepository, publisher *events.Publisher, validate *validator.Validate, logger *zap.Logger) *RotationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RotationService{repo: repo, publisher: publisher, validator: validate, logger: logger}
}

// List returns every rotation template.
func (s *RotationService) List(ctx context.Context) ([]models.RotationTemplate, error) {
	templates, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list templates")
	}
	return templates, nil
}

// Get returns one template.
func (s *RotationService) Get(ctx context.Context, id string) (*models.RotationTemplate, error) {
	tpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "rotation template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}
	return tpl, nil
}

// Create registers a new template.
func (s *RotationService) Create(ctx context.Context, actor string, req UpsertRotationTemplateRequest) (*models.RotationTemplate, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	tpl := s.apply(&models.RotationTemplate{}, req)
	if err := s.repo.Create(ctx, tpl); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create template")
	}
	s.publisher.Emit(ctx, actor, "rotation_template", tpl.ID, "created", tpl)
	return tpl, nil
}

// Update modifies an existing template. Capacity changes affect future
// solves only; existing assignments stay until revalidated.
func (s *RotationService) Update(ctx context.Context, actor, id string, req UpsertRotationTemplateRequest) (*models.RotationTemplate, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tpl = s.apply(tpl, req)
	if err := s.repo.Update(ctx, tpl); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "rotation template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update template")
	}
	s.publisher.Emit(ctx, actor, "rotation_template", tpl.ID, "updated", tpl)
	return tpl, nil
}

// Delete removes a template no assignment references.
func (s *RotationService) Delete(ctx context.Context, actor, id string) error {
	inUse, err := s.repo.InUse(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check template use")
	}
	if inUse {
		return appErrors.Clone(appErrors.ErrConflict, "template is referenced by assignments")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "rotation template not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete template")
	}
	s.publisher.Emit(ctx, actor, "rotation_template", id, "deleted", nil)
	return nil
}

func (s *RotationService) checkRequest(req UpsertRotationTemplateRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	if req.MaxPerSlot > 0 && req.MinPerSlot > req.MaxPerSlot {
		return appErrors.Clone(appErrors.ErrValidation, "min_per_slot exceeds max_per_slot")
	}
	return nil
}

func (s *RotationService) apply(tpl *models.RotationTemplate, req UpsertRotationTemplateRequest) *models.RotationTemplate {
	tpl.Name = req.Name
	tpl.Kind = req.Kind
	tpl.MinPerSlot = req.MinPerSlot
	tpl.MaxPerSlot = req.MaxPerSlot
	tpl.RequiredSpecialty = req.RequiredSpecialty
	tpl.SupervisionRatio = req.SupervisionRatio
	tpl.SeniorityFloor = req.SeniorityFloor
	tpl.LeaveEligible = req.LeaveEligible
	tpl.IncludesWeekends = req.IncludesWeekends
	tpl.HoursPerSlot = req.HoursPerSlot
	tpl.PostCallRestHours = req.PostCallRestHours
	return tpl
}
