package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/compliance"
	"github.com/clinrota/rota-api/internal/conflict"
	"github.com/clinrota/rota-api/internal/constraint"
	"github.com/clinrota/rota-api/internal/events"
	"github.com/clinrota/rota-api/internal/models"
	"github.com/clinrota/rota-api/internal/repository"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

type swapRepository interface {
	Create(ctx context.Context, swap *models.SwapRecord) error
	FindByID(ctx context.Context, id string) (*models.SwapRecord, error)
	ListByStatus(ctx context.Context, status models.SwapStatus) ([]models.SwapRecord, error)
	ListForAssignment(ctx context.Context, assignmentID string) ([]models.SwapRecord, error)
	LastExecutedForPerson(ctx context.Context, personID string) (*time.Time, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, swap *models.SwapRecord, expected models.SwapStatus) error
}

type swapAssignmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListInRange(ctx context.Context, dr models.DateRange) ([]models.Assignment, error)
	UpdateVersioned(ctx context.Context, exec sqlx.ExtContext, a *models.Assignment) error
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

// ProposeSwapRequest opens a swap between two existing assignments.
type ProposeSwapRequest struct {
	SourceAssignmentID string `json:"source_assignment_id" validate:"required"`
	TargetAssignmentID string `json:"target_assignment_id" validate:"required"`
}

// ValidateSwapRequest runs the rule check on a proposed swap. OverrideReason
// lets a scheduler accept a failing validation explicitly.
type ValidateSwapRequest struct {
	OverrideReason *string `json:"override_reason"`
}

// RollbackSwapRequest reverses an executed swap inside its window.
type RollbackSwapRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// SwapService drives the swap lifecycle. Each transition re-reads the
// record and moves it forward under a status guard, so two schedulers
// racing on the same swap cannot both win.
type SwapService struct {
	swaps          swapRepository
	assignments    swapAssignmentRepository
	people         compliancePersonRepository
	templates      complianceTemplateRepository
	absences       assignmentAbsenceRepository
	constraints    activeConstraintSource
	detector       *conflict.Detector
	engine         *compliance.Engine
	publisher      *events.Publisher
	metrics        *MetricsService
	rollbackWindow time.Duration
	matchLimit     int
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewSwapService constructs the swap service.
func NewSwapService(
	swaps swapRepository,
	assignments swapAssignmentRepository,
	people compliancePersonRepository,
	templates complianceTemplateRepository,
	absences assignmentAbsenceRepository,
	constraints activeConstraintSource,
	detector *conflict.Detector,
	engine *compliance.Engine,
	publisher *events.Publisher,
	metrics *MetricsService,
	rollbackWindow time.Duration,
	matchLimit int,
	validate *validator.Validate,
	logger *zap.Logger,
) *SwapService {
	if detector == nil {
		detector = conflict.NewDetector(nil)
	}
	if engine == nil {
		engine = compliance.NewEngine(compliance.DefaultThresholds())
	}
	if rollbackWindow <= 0 {
		rollbackWindow = 24 * time.Hour
	}
	if matchLimit <= 0 {
		matchLimit = 10
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwapService{
		swaps:          swaps,
		assignments:    assignments,
		people:         people,
		templates:      templates,
		absences:       absences,
		constraints:    constraints,
		detector:       detector,
		engine:         engine,
		publisher:      publisher,
		metrics:        metrics,
		rollbackWindow: rollbackWindow,
		matchLimit:     matchLimit,
		validator:      validate,
		logger:         logger,
	}
}

// Get returns one swap record.
func (s *SwapService) Get(ctx context.Context, id string) (*models.SwapRecord, error) {
	swap, err := s.swaps.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "swap not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load swap")
	}
	return swap, nil
}

// ListByStatus returns swaps in one lifecycle stage.
func (s *SwapService) ListByStatus(ctx context.Context, status models.SwapStatus) ([]models.SwapRecord, error) {
	swaps, err := s.swaps.ListByStatus(ctx, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list swaps")
	}
	return swaps, nil
}

// Propose records a swap between two distinct, unlocked assignments and
// pins the versions observed now. Execution later fails if either moves.
func (s *SwapService) Propose(ctx context.Context, actor string, req ProposeSwapRequest) (*models.SwapRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid swap payload")
	}
	if req.SourceAssignmentID == req.TargetAssignmentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot swap an assignment with itself")
	}
	source, err := s.loadAssignment(ctx, req.SourceAssignmentID)
	if err != nil {
		return nil, err
	}
	target, err := s.loadAssignment(ctx, req.TargetAssignmentID)
	if err != nil {
		return nil, err
	}
	if source.Locked || target.Locked {
		return nil, appErrors.Clone(appErrors.ErrConflict, "locked assignments cannot be swapped")
	}
	if source.PersonID == target.PersonID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "both assignments belong to the same person")
	}

	swap := &models.SwapRecord{
		SourceAssignmentID: source.ID,
		TargetAssignmentID: target.ID,
		SourceVersion:      source.Version,
		TargetVersion:      target.Version,
		ProposedBy:         actor,
	}
	if err := s.swaps.Create(ctx, swap); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create swap")
	}
	s.metrics.CountSwapTransition(string(models.SwapStatusProposed))
	s.publisher.Emit(ctx, actor, "swap", swap.ID, "proposed", swap)
	return swap, nil
}

// Validate simulates the exchange and stores the outcome on the record. A
// failing check leaves the swap in PROPOSED unless an override reason is
// supplied.
func (s *SwapService) Validate(ctx context.Context, actor, id string, req ValidateSwapRequest) (*models.SwapRecord, error) {
	swap, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if swap.Status != models.SwapStatusProposed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "swap is not in a validatable state")
	}
	source, err := s.loadAssignment(ctx, swap.SourceAssignmentID)
	if err != nil {
		return nil, err
	}
	target, err := s.loadAssignment(ctx, swap.TargetAssignmentID)
	if err != nil {
		return nil, err
	}

	validation, err := s.simulate(ctx, source, target)
	if err != nil {
		return nil, err
	}
	if !validation.Passed && (req.OverrideReason == nil || *req.OverrideReason == "") {
		payload, _ := json.Marshal(validation)
		swap.Validation = types.JSONText(payload)
		// The failed outcome is kept on the record; the swap stays PROPOSED.
		if err := s.swaps.UpdateStatus(ctx, nil, swap, models.SwapStatusProposed); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrConflict, "swap state changed concurrently")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record validation")
		}
		return swap, appErrors.Clone(appErrors.ErrCompliance, "swap fails hard constraints")
	}

	payload, err := json.Marshal(validation)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode validation")
	}
	now := time.Now().UTC()
	swap.Status = models.SwapStatusValidated
	swap.ValidatedAt = &now
	swap.Validation = types.JSONText(payload)
	swap.OverrideReason = req.OverrideReason
	if err := s.swaps.UpdateStatus(ctx, nil, swap, models.SwapStatusProposed); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrConflict, "swap state changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update swap")
	}
	s.metrics.CountSwapTransition(string(models.SwapStatusValidated))
	s.publisher.Emit(ctx, actor, "swap", swap.ID, "validated", swap)
	return swap, nil
}

// Execute applies a validated swap by exchanging the two person IDs in one
// transaction. Version drift since validation fails with CONFLICT.
func (s *SwapService) Execute(ctx context.Context, actor, id string) (*models.SwapRecord, error) {
	swap, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if swap.Status != models.SwapStatusValidated {
		return nil, appErrors.Clone(appErrors.ErrConflict, "swap must be validated before execution")
	}
	source, err := s.loadAssignment(ctx, swap.SourceAssignmentID)
	if err != nil {
		return nil, err
	}
	target, err := s.loadAssignment(ctx, swap.TargetAssignmentID)
	if err != nil {
		return nil, err
	}
	if source.Version != swap.SourceVersion || target.Version != swap.TargetVersion {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignments changed since validation")
	}

	now := time.Now().UTC()
	deadline := now.Add(s.rollbackWindow)
	swap.Status = models.SwapStatusExecuted
	swap.ExecutedAt = &now
	swap.RollbackDeadline = &deadline
	if err := s.exchange(ctx, source, target, swap, models.SwapStatusValidated); err != nil {
		return nil, err
	}
	s.metrics.CountSwapTransition(string(models.SwapStatusExecuted))
	s.publisher.Emit(ctx, actor, "swap", swap.ID, "executed", swap)
	return swap, nil
}

// Rollback reverses an executed swap while its window is open. The inverse
// exchange runs the same validation pass as execution: a rollback that would
// itself break a hard rule is rejected for manual resolution.
func (s *SwapService) Rollback(ctx context.Context, actor, id string, req RollbackSwapRequest) (*models.SwapRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rollback payload")
	}
	swap, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if swap.Status == models.SwapStatusRolledBack {
		return nil, appErrors.Clone(appErrors.ErrConflict, "swap already rolled back")
	}
	if swap.Status != models.SwapStatusExecuted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "swap has not been executed")
	}
	if !swap.RollbackOpen(now) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "rollback window expired")
	}
	source, err := s.loadAssignment(ctx, swap.SourceAssignmentID)
	if err != nil {
		return nil, err
	}
	target, err := s.loadAssignment(ctx, swap.TargetAssignmentID)
	if err != nil {
		return nil, err
	}
	if source.Version != swap.SourceVersion || target.Version != swap.TargetVersion {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignments modified since execution")
	}

	validation, err := s.simulate(ctx, source, target)
	if err != nil {
		return nil, err
	}
	if !validation.Passed {
		payload, _ := json.Marshal(validation)
		swap.Validation = types.JSONText(payload)
		return swap, appErrors.Clone(appErrors.ErrCompliance, "rollback would violate hard constraints")
	}

	swap.Status = models.SwapStatusRolledBack
	swap.RolledBackAt = &now
	swap.RollbackReason = &req.Reason
	if err := s.exchange(ctx, source, target, swap, models.SwapStatusExecuted); err != nil {
		return nil, err
	}
	s.metrics.CountSwapTransition(string(models.SwapStatusRolledBack))
	s.publisher.Emit(ctx, actor, "swap", swap.ID, "rolled_back", swap)
	return swap, nil
}

// Match ranks counterpart assignments for the given one: fewest introduced
// violations first, then smallest workload-fairness shift, then longest
// time since the counterparty last swapped.
func (s *SwapService) Match(ctx context.Context, assignmentID string) ([]models.SwapCandidate, error) {
	source, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	window := models.DateRange{
		Start: source.SlotDate.AddDate(0, 0, -validationWindowDays),
		End:   source.SlotDate.AddDate(0, 0, validationWindowDays),
	}
	pool, err := s.assignments.ListInRange(ctx, window)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load candidates")
	}
	templates, err := s.templateIndex(ctx)
	if err != nil {
		return nil, err
	}
	baseline := constraint.WorkloadVariance(pool, templates)

	var candidates []models.SwapCandidate
	for i := range pool {
		counterpart := pool[i]
		if counterpart.ID == source.ID || counterpart.Locked || counterpart.PersonID == source.PersonID {
			continue
		}
		validation, err := s.simulate(ctx, source, &counterpart)
		if err != nil {
			return nil, err
		}
		lastSwap, err := s.swaps.LastExecutedForPerson(ctx, counterpart.PersonID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load swap history")
		}
		candidates = append(candidates, models.SwapCandidate{
			Assignment:     counterpart,
			Violations:     len(validation.Violations),
			FairnessDelta:  s.fairnessDelta(pool, source, &counterpart, templates, baseline),
			LastSwapAt:     lastSwap,
			CounterpartyID: counterpart.PersonID,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Violations != candidates[j].Violations {
			return candidates[i].Violations < candidates[j].Violations
		}
		if candidates[i].FairnessDelta != candidates[j].FairnessDelta {
			return candidates[i].FairnessDelta < candidates[j].FairnessDelta
		}
		return earlier(candidates[i].LastSwapAt, candidates[j].LastSwapAt)
	})
	if len(candidates) > s.matchLimit {
		candidates = candidates[:s.matchLimit]
	}
	return candidates, nil
}

// earlier orders nil (never swapped) before any timestamp.
func earlier(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}

func (s *SwapService) fairnessDelta(pool []models.Assignment, source, target *models.Assignment, templates map[string]models.RotationTemplate, baseline float64) float64 {
	swapped := make([]models.Assignment, len(pool))
	copy(swapped, pool)
	for i := range swapped {
		switch swapped[i].ID {
		case source.ID:
			swapped[i].PersonID = target.PersonID
		case target.ID:
			swapped[i].PersonID = source.PersonID
		}
	}
	delta := constraint.WorkloadVariance(swapped, templates) - baseline
	if delta < 0 {
		delta = -delta
	}
	return delta
}

// simulate runs the hard rules and the conflict detector over the window as
// it would look with the two persons exchanged.
func (s *SwapService) simulate(ctx context.Context, source, target *models.Assignment) (*models.SwapValidation, error) {
	window := models.DateRange{
		Start: minTime(source.SlotDate, target.SlotDate).AddDate(0, 0, -validationWindowDays),
		End:   maxTime(source.SlotDate, target.SlotDate).AddDate(0, 0, validationWindowDays),
	}
	existing, err := s.assignments.ListInRange(ctx, window)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load window assignments")
	}
	swapped := make([]models.Assignment, len(existing))
	copy(swapped, existing)
	for i := range swapped {
		switch swapped[i].ID {
		case source.ID:
			swapped[i].PersonID = target.PersonID
		case target.ID:
			swapped[i].PersonID = source.PersonID
		}
	}

	peopleList, err := s.people.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load people")
	}
	people := make(map[string]models.Person, len(peopleList))
	for _, p := range peopleList {
		people[p.ID] = p
	}
	templates, err := s.templateIndex(ctx)
	if err != nil {
		return nil, err
	}
	absences, err := s.absences.ListInRange(ctx, window)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load absences")
	}

	sctx := &constraint.Context{
		People:     people,
		Templates:  templates,
		Absences:   absences,
		Compliance: s.engine,
		Range:      window,
		Now:        time.Now().UTC(),
	}
	active, err := s.constraints.ActiveSet(ctx)
	if err != nil {
		return nil, err
	}
	touched := map[string]bool{source.PersonID: true, target.PersonID: true}
	var violations []models.Violation
	for _, c := range active {
		if !c.Hard() {
			continue
		}
		for _, v := range c.Validate(sctx, swapped) {
			if v.PersonID != "" && !touched[v.PersonID] {
				continue
			}
			violations = append(violations, v)
		}
	}

	conflicts := s.detector.Detect(conflict.Scope{
		Assignments: swapped,
		Absences:    absences,
		People:      people,
		Templates:   templates,
		Range:       window,
	})
	var relevant []models.Conflict
	for _, c := range conflicts {
		if touched[c.PersonID] {
			relevant = append(relevant, c)
		}
	}

	return &models.SwapValidation{
		Passed:     len(violations) == 0 && len(relevant) == 0,
		Violations: violations,
		Conflicts:  relevant,
		CheckedAt:  time.Now().UTC(),
	}, nil
}

// exchange swaps the two person IDs under CAS and advances the record's
// lifecycle, all in one transaction, so the rows and the swap status cannot
// diverge. Both rows advance a version, which is what invalidates any other
// open swap that pinned them.
func (s *SwapService) exchange(ctx context.Context, source, target *models.Assignment, swap *models.SwapRecord, expected models.SwapStatus) error {
	tx, err := s.assignments.BeginTx(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	srcVersion, tgtVersion := swap.SourceVersion, swap.TargetVersion
	source.PersonID, target.PersonID = target.PersonID, source.PersonID
	err = s.assignments.UpdateVersioned(ctx, tx, source)
	if err == nil {
		err = s.assignments.UpdateVersioned(ctx, tx, target)
	}
	if err == nil {
		swap.SourceVersion = source.Version
		swap.TargetVersion = target.Version
		err = s.swaps.UpdateStatus(ctx, tx, swap, expected)
	}
	if err != nil {
		_ = tx.Rollback()
		source.PersonID, target.PersonID = target.PersonID, source.PersonID
		swap.SourceVersion, swap.TargetVersion = srcVersion, tgtVersion
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrConflict, "swap state changed concurrently")
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			return appErrors.Clone(appErrors.ErrConflict, "assignment moved during swap")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply swap")
	}
	if err := tx.Commit(); err != nil {
		source.PersonID, target.PersonID = target.PersonID, source.PersonID
		swap.SourceVersion, swap.TargetVersion = srcVersion, tgtVersion
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit swap")
	}
	return nil
}

func (s *SwapService) loadAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	a, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return a, nil
}

func (s *SwapService) templateIndex(ctx context.Context) (map[string]models.RotationTemplate, error) {
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

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
