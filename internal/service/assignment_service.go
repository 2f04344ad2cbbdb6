package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/compliance"
	"github.com/clinrota/rota-api/internal/constraint"
	"github.com/clinrota/rota-api/internal/events"
	"github.com/clinrota/rota-api/internal/models"
	"github.com/clinrota/rota-api/internal/repository"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

// validationWindowDays widens the checked window around a touched slot so
// rolling duty-hour rules see enough history on both sides.
const validationWindowDays = 28

type assignmentRepositoryFull interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	ListInRange(ctx context.Context, dr models.DateRange) ([]models.Assignment, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, a *models.Assignment) error
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, assignments []models.Assignment) error
	UpdateVersioned(ctx context.Context, exec sqlx.ExtContext, a *models.Assignment) error
	DeleteVersioned(ctx context.Context, exec sqlx.ExtContext, id string, version int) error
	SetLocked(ctx context.Context, id string, version int, locked bool) error
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

type assignmentBlockRepository interface {
	ListOverlapping(ctx context.Context, dr models.DateRange) ([]models.Block, error)
}

type assignmentAbsenceRepository interface {
	ListInRange(ctx context.Context, dr models.DateRange) ([]models.Absence, error)
}

type activeConstraintSource interface {
	ActiveSet(ctx context.Context) ([]constraint.Constraint, error)
}

// CreateAssignmentRequest holds payload for one manual assignment.
type CreateAssignmentRequest struct {
	PersonID              string                `json:"person_id" validate:"required"`
	TemplateID            string                `json:"template_id" validate:"required"`
	SlotDate              time.Time             `json:"slot_date" validate:"required"`
	SlotPeriod            models.SlotPeriod     `json:"slot_period" validate:"required,oneof=AM PM"`
	Role                  models.AssignmentRole `json:"role" validate:"omitempty,oneof=PRIMARY SUPERVISING BACKUP"`
	Locked                bool                  `json:"locked"`
	OverrideJustification *string               `json:"override_justification"`
}

// UpdateAssignmentRequest holds payload for a versioned assignment update.
type UpdateAssignmentRequest struct {
	PersonID              string                `json:"person_id" validate:"required"`
	TemplateID            string                `json:"template_id" validate:"required"`
	SlotDate              time.Time             `json:"slot_date" validate:"required"`
	SlotPeriod            models.SlotPeriod     `json:"slot_period" validate:"required,oneof=AM PM"`
	Role                  models.AssignmentRole `json:"role" validate:"omitempty,oneof=PRIMARY SUPERVISING BACKUP"`
	Locked                bool                  `json:"locked"`
	Version               int                   `json:"version" validate:"required,gte=1"`
	OverrideJustification *string               `json:"override_justification"`
}

// BulkCreateRequest creates many assignments in one call. Atomic batches
// roll back entirely on the first failure; non-atomic batches report
// per-item outcomes.
type BulkCreateRequest struct {
	Items  []CreateAssignmentRequest `json:"items" validate:"required,min=1,dive"`
	Atomic bool                      `json:"atomic"`
}

// BulkUpdateItem pairs an assignment ID with its versioned update payload.
type BulkUpdateItem struct {
	ID string `json:"id" validate:"required"`
	UpdateAssignmentRequest
}

// BulkUpdateRequest applies many versioned updates in one call.
type BulkUpdateRequest struct {
	Items  []BulkUpdateItem `json:"items" validate:"required,min=1,dive"`
	Atomic bool             `json:"atomic"`
}

// BulkDeleteRequest removes every assignment whose slot falls inside the
// date range. Locked assignments are never deleted.
type BulkDeleteRequest struct {
	Start  time.Time `json:"start" validate:"required"`
	End    time.Time `json:"end" validate:"required"`
	Atomic bool      `json:"atomic"`
}

// BulkItemResult is the per-item outcome of a bulk mutation.
type BulkItemResult struct {
	Index      int                `json:"index"`
	Assignment *models.Assignment `json:"assignment,omitempty"`
	Violations []models.Violation `json:"violations,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// AssignmentService owns manual assignment writes. Every mutation runs the
// hard-rule precheck first; a breach blocks the write unless the caller
// supplies an override justification, which is persisted with the row and
// recorded as an acknowledged violation.
type AssignmentService struct {
	repo        assignmentRepositoryFull
	people      compliancePersonRepository
	templates   complianceTemplateRepository
	blocks      assignmentBlockRepository
	absences    assignmentAbsenceRepository
	constraints activeConstraintSource
	violations  violationRepository
	engine      *compliance.Engine
	publisher   *events.Publisher
	metrics     *MetricsService
	maxBatch    int
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs the assignment service.
func NewAssignmentService(
	repo assignmentRepositoryFull,
	people compliancePersonRepository,
	templates complianceTemplateRepository,
	blocks assignmentBlockRepository,
	absences assignmentAbsenceRepository,
	constraints activeConstraintSource,
	violations violationRepository,
	engine *compliance.Engine,
	publisher *events.Publisher,
	metrics *MetricsService,
	maxBatch int,
	validate *validator.Validate,
	logger *zap.Logger,
) *AssignmentService {
	if engine == nil {
		engine = compliance.NewEngine(compliance.DefaultThresholds())
	}
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		repo:        repo,
		people:      people,
		templates:   templates,
		blocks:      blocks,
		absences:    absences,
		constraints: constraints,
		violations:  violations,
		engine:      engine,
		publisher:   publisher,
		metrics:     metrics,
		maxBatch:    maxBatch,
		validator:   validate,
		logger:      logger,
	}
}

// List returns assignments and pagination metadata.
func (s *AssignmentService) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, *models.Pagination, error) {
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one assignment.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return a, nil
}

// Create places one manual assignment. Returned violations are non-empty
// only when the error carries the compliance code; callers surface them
// alongside the rejection.
func (s *AssignmentService) Create(ctx context.Context, actor string, req CreateAssignmentRequest) (*models.Assignment, []models.Violation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	candidate, err := s.buildCandidate(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	violations, err := s.precheck(ctx, *candidate, "")
	if err != nil {
		return nil, nil, err
	}
	if len(violations) > 0 {
		if err := s.resolveOverride(ctx, actor, req.OverrideJustification, violations); err != nil {
			return nil, violations, err
		}
		candidate.OverrideJustification = req.OverrideJustification
	}
	candidate.CreatedBy = actor
	if err := s.repo.Create(ctx, candidate); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	s.publisher.Emit(ctx, actor, "assignment", candidate.ID, "created", candidate)
	return candidate, violations, nil
}

// Update applies a versioned assignment update. A stale version fails with
// CONFLICT and the caller must re-read.
func (s *AssignmentService) Update(ctx context.Context, actor, id string, req UpdateAssignmentRequest) (*models.Assignment, []models.Violation, error) {
	updated, violations, err := s.prepareUpdate(ctx, actor, id, req)
	if err != nil {
		return nil, violations, err
	}
	if err := s.repo.UpdateVersioned(ctx, nil, updated); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, "assignment was modified concurrently")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	s.publisher.Emit(ctx, actor, "assignment", id, "updated", updated)
	return updated, violations, nil
}

// prepareUpdate builds the post-change record and runs the hard-rule
// precheck, leaving persistence to the caller.
func (s *AssignmentService) prepareUpdate(ctx context.Context, actor, id string, req UpdateAssignmentRequest) (*models.Assignment, []models.Violation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	updated := *current
	updated.PersonID = req.PersonID
	updated.TemplateID = req.TemplateID
	updated.SlotDate = req.SlotDate
	updated.SlotPeriod = req.SlotPeriod
	if req.Role != "" {
		updated.Role = req.Role
	}
	updated.Locked = req.Locked
	updated.Version = req.Version
	block, err := s.blockFor(ctx, req.SlotDate)
	if err != nil {
		return nil, nil, err
	}
	updated.BlockID = block.ID

	violations, err := s.precheck(ctx, updated, id)
	if err != nil {
		return nil, nil, err
	}
	if len(violations) > 0 {
		if err := s.resolveOverride(ctx, actor, req.OverrideJustification, violations); err != nil {
			return nil, violations, err
		}
		updated.OverrideJustification = req.OverrideJustification
	}
	return &updated, violations, nil
}

// Delete removes an assignment under version guard.
func (s *AssignmentService) Delete(ctx context.Context, actor, id string, version int) error {
	if err := s.repo.DeleteVersioned(ctx, nil, id, version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return appErrors.Clone(appErrors.ErrConflict, "assignment was modified concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	s.publisher.Emit(ctx, actor, "assignment", id, "deleted", nil)
	return nil
}

// SetLocked pins or releases an assignment so solver re-runs leave it alone.
func (s *AssignmentService) SetLocked(ctx context.Context, actor, id string, version int, locked bool) error {
	if err := s.repo.SetLocked(ctx, id, version, locked); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return appErrors.Clone(appErrors.ErrConflict, "assignment was modified concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle lock")
	}
	action := "unlocked"
	if locked {
		action = "locked"
	}
	s.publisher.Emit(ctx, actor, "assignment", id, action, nil)
	return nil
}

// BulkCreate places up to the configured batch limit of assignments. Atomic
// batches validate every item first and insert inside one transaction.
func (s *AssignmentService) BulkCreate(ctx context.Context, actor string, req BulkCreateRequest) ([]BulkItemResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	if len(req.Items) > s.maxBatch {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("batch exceeds limit of %d items", s.maxBatch))
	}
	if req.Atomic {
		return s.bulkCreateAtomic(ctx, actor, req.Items)
	}
	results := make([]BulkItemResult, 0, len(req.Items))
	for i, item := range req.Items {
		created, violations, err := s.Create(ctx, actor, item)
		result := BulkItemResult{Index: i, Assignment: created, Violations: violations}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *AssignmentService) bulkCreateAtomic(ctx context.Context, actor string, items []CreateAssignmentRequest) ([]BulkItemResult, error) {
	batch := make([]models.Assignment, 0, len(items))
	results := make([]BulkItemResult, 0, len(items))
	for i, item := range items {
		candidate, err := s.buildCandidate(ctx, item)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
				fmt.Sprintf("item %d rejected", i))
		}
		violations, err := s.precheck(ctx, *candidate, "")
		if err != nil {
			return nil, err
		}
		if len(violations) > 0 {
			if err := s.resolveOverride(ctx, actor, item.OverrideJustification, violations); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrCompliance.Code, appErrors.ErrCompliance.Status,
					fmt.Sprintf("item %d violates hard constraints", i))
			}
			candidate.OverrideJustification = item.OverrideJustification
		}
		candidate.CreatedBy = actor
		batch = append(batch, *candidate)
		results = append(results, BulkItemResult{Index: i, Violations: violations})
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	if err := s.repo.BulkCreateWithTx(ctx, tx, batch); err != nil {
		_ = tx.Rollback()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "bulk insert failed")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit batch")
	}
	for i := range batch {
		results[i].Assignment = &batch[i]
		s.publisher.Emit(ctx, actor, "assignment", batch[i].ID, "created", &batch[i])
	}
	return results, nil
}

// BulkUpdate applies up to the batch limit of versioned updates. Atomic
// batches precheck every item first and write inside one transaction;
// non-atomic batches report per-item outcomes.
func (s *AssignmentService) BulkUpdate(ctx context.Context, actor string, req BulkUpdateRequest) ([]BulkItemResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	if len(req.Items) > s.maxBatch {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("batch exceeds limit of %d items", s.maxBatch))
	}
	if req.Atomic {
		return s.bulkUpdateAtomic(ctx, actor, req.Items)
	}
	results := make([]BulkItemResult, 0, len(req.Items))
	for i, item := range req.Items {
		updated, violations, err := s.Update(ctx, actor, item.ID, item.UpdateAssignmentRequest)
		result := BulkItemResult{Index: i, Assignment: updated, Violations: violations}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *AssignmentService) bulkUpdateAtomic(ctx context.Context, actor string, items []BulkUpdateItem) ([]BulkItemResult, error) {
	batch := make([]*models.Assignment, 0, len(items))
	results := make([]BulkItemResult, 0, len(items))
	for i, item := range items {
		updated, violations, err := s.prepareUpdate(ctx, actor, item.ID, item.UpdateAssignmentRequest)
		if err != nil {
			appErr := appErrors.FromError(err)
			return nil, appErrors.Wrap(err, appErr.Code, appErr.Status, fmt.Sprintf("item %d rejected", i))
		}
		batch = append(batch, updated)
		results = append(results, BulkItemResult{Index: i, Violations: violations})
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	for i, updated := range batch {
		if err := s.repo.UpdateVersioned(ctx, tx, updated); err != nil {
			_ = tx.Rollback()
			if errors.Is(err, repository.ErrVersionConflict) {
				return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("item %d was modified concurrently", i))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "bulk update failed")
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit batch")
	}
	for i, updated := range batch {
		results[i].Assignment = updated
		s.publisher.Emit(ctx, actor, "assignment", updated.ID, "updated", updated)
	}
	return results, nil
}

// BulkDelete removes every unlocked assignment inside the date range under
// version guard. Locked assignments are reported, never deleted.
func (s *AssignmentService) BulkDelete(ctx context.Context, actor string, req BulkDeleteRequest) ([]BulkItemResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	if req.End.Before(req.Start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end precedes start")
	}
	doomed, err := s.repo.ListInRange(ctx, models.DateRange{Start: req.Start, End: req.End})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load range")
	}
	if len(doomed) > s.maxBatch {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("range holds more than %d assignments", s.maxBatch))
	}
	if req.Atomic {
		return s.bulkDeleteAtomic(ctx, actor, doomed)
	}
	results := make([]BulkItemResult, 0, len(doomed))
	for i := range doomed {
		a := doomed[i]
		result := BulkItemResult{Index: i, Assignment: &a}
		switch {
		case a.Locked:
			result.Error = "assignment is locked"
		default:
			if err := s.Delete(ctx, actor, a.ID, a.Version); err != nil {
				result.Error = err.Error()
			}
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *AssignmentService) bulkDeleteAtomic(ctx context.Context, actor string, doomed []models.Assignment) ([]BulkItemResult, error) {
	results := make([]BulkItemResult, 0, len(doomed))
	for i := range doomed {
		if doomed[i].Locked {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("item %d is locked", i))
		}
		results = append(results, BulkItemResult{Index: i, Assignment: &doomed[i]})
	}
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	for i := range doomed {
		if err := s.repo.DeleteVersioned(ctx, tx, doomed[i].ID, doomed[i].Version); err != nil {
			_ = tx.Rollback()
			if errors.Is(err, repository.ErrVersionConflict) {
				return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("item %d was modified concurrently", i))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "bulk delete failed")
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit batch")
	}
	for i := range doomed {
		s.publisher.Emit(ctx, actor, "assignment", doomed[i].ID, "deleted", nil)
	}
	return results, nil
}

func (s *AssignmentService) buildCandidate(ctx context.Context, req CreateAssignmentRequest) (*models.Assignment, error) {
	if _, err := s.people.FindByID(ctx, req.PersonID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	block, err := s.blockFor(ctx, req.SlotDate)
	if err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = models.AssignmentRolePrimary
	}
	return &models.Assignment{
		PersonID:   req.PersonID,
		TemplateID: req.TemplateID,
		BlockID:    block.ID,
		SlotDate:   req.SlotDate,
		SlotPeriod: req.SlotPeriod,
		Role:       role,
		Locked:     req.Locked,
	}, nil
}

func (s *AssignmentService) blockFor(ctx context.Context, date time.Time) (*models.Block, error) {
	blocks, err := s.blocks.ListOverlapping(ctx, models.DateRange{Start: date, End: date})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve block")
	}
	if len(blocks) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no academic block covers the slot date")
	}
	return &blocks[0], nil
}

// precheck validates the assignment set that would exist after the change
// against every enabled hard rule, reporting only violations the change
// introduces or touches. excludeID removes the pre-change row on updates.
func (s *AssignmentService) precheck(ctx context.Context, candidate models.Assignment, excludeID string) ([]models.Violation, error) {
	window := models.DateRange{
		Start: candidate.SlotDate.AddDate(0, 0, -validationWindowDays),
		End:   candidate.SlotDate.AddDate(0, 0, validationWindowDays),
	}
	existing, err := s.repo.ListInRange(ctx, window)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load window assignments")
	}
	set := make([]models.Assignment, 0, len(existing)+1)
	for _, a := range existing {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		set = append(set, a)
	}
	set = append(set, candidate)

	sctx, err := s.buildConstraintContext(ctx, window)
	if err != nil {
		return nil, err
	}
	active, err := s.constraints.ActiveSet(ctx)
	if err != nil {
		return nil, err
	}

	var violations []models.Violation
	for _, c := range active {
		if !c.Hard() {
			continue
		}
		for _, v := range c.Validate(sctx, set) {
			if !s.touchesCandidate(v, candidate) {
				continue
			}
			violations = append(violations, v)
			s.metrics.CountViolation(v.Rule, string(v.Severity))
		}
	}
	return violations, nil
}

// touchesCandidate keeps only breaches the proposed change participates in;
// pre-existing violations elsewhere in the window must not block the write.
func (s *AssignmentService) touchesCandidate(v models.Violation, candidate models.Assignment) bool {
	if v.PersonID != "" && v.PersonID != candidate.PersonID {
		return false
	}
	if v.PersonID == "" && !v.Date.Equal(candidate.SlotDate) {
		return false
	}
	return true
}

func (s *AssignmentService) buildConstraintContext(ctx context.Context, window models.DateRange) (*constraint.Context, error) {
	peopleList, err := s.people.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load people")
	}
	templates, err := s.templateIndex(ctx)
	if err != nil {
		return nil, err
	}
	absences, err := s.absences.ListInRange(ctx, window)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load absences")
	}
	people := make(map[string]models.Person, len(peopleList))
	for _, p := range peopleList {
		people[p.ID] = p
	}
	return &constraint.Context{
		People:     people,
		Templates:  templates,
		Absences:   absences,
		Compliance: s.engine,
		Range:      window,
		Now:        time.Now().UTC(),
	}, nil
}

func (s *AssignmentService) templateIndex(ctx context.Context) (map[string]models.RotationTemplate, error) {
	list, err := s.templates.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load templates")
	}
	templates := make(map[string]models.RotationTemplate, len(list))
	for _, t := range list {
		templates[t.ID] = t
	}
	return templates, nil
}

// resolveOverride accepts a hard-rule breach when a justification is
// supplied, persisting each violation as acknowledged. Without one, the
// write is rejected with the compliance code.
func (s *AssignmentService) resolveOverride(ctx context.Context, actor string, justification *string, violations []models.Violation) error {
	if justification == nil || *justification == "" {
		return appErrors.Clone(appErrors.ErrCompliance, "assignment violates hard constraints")
	}
	for i := range violations {
		v := violations[i]
		v.Acknowledged = true
		v.Justification = justification
		if err := s.violations.Record(ctx, &v); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record override")
		}
	}
	s.logger.Info("hard-constraint override accepted",
		zap.String("actor", actor),
		zap.Int("violations", len(violations)),
	)
	return nil
}
