package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/compliance"
	"github.com/clinrota/rota-api/internal/events"
	"github.com/clinrota/rota-api/internal/models"
	"github.com/clinrota/rota-api/internal/solver"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

type scheduleAssignmentRepository interface {
	ListInRange(ctx context.Context, dr models.DateRange) ([]models.Assignment, error)
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, assignments []models.Assignment) error
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

// SolveRequest parameterizes one solver run over a horizon.
type SolveRequest struct {
	Start      time.Time        `json:"start" validate:"required"`
	End        time.Time        `json:"end" validate:"required"`
	Algorithm  solver.Algorithm `json:"algorithm" validate:"omitempty,oneof=auto exact heuristic"`
	TimeoutSec int              `json:"timeout_seconds" validate:"omitempty,gte=1,lte=600"`
	// Commit persists the produced assignments when the run is feasible.
	// A dry run returns the proposal without writing anything.
	Commit bool `json:"commit"`
}

// ScheduleService orchestrates solver runs. It assembles an instance from
// live data, runs the engine, and optionally commits the produced schedule
// with solver provenance stamped on every row.
type ScheduleService struct {
	assignments scheduleAssignmentRepository
	people      compliancePersonRepository
	templates   complianceTemplateRepository
	blocks      assignmentBlockRepository
	absences    assignmentAbsenceRepository
	constraints activeConstraintSource
	engine      *solver.Engine
	compliance  *compliance.Engine
	publisher   *events.Publisher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewScheduleService constructs the schedule service.
func NewScheduleService(
	assignments scheduleAssignmentRepository,
	people compliancePersonRepository,
	templates complianceTemplateRepository,
	blocks assignmentBlockRepository,
	absences assignmentAbsenceRepository,
	constraints activeConstraintSource,
	engine *solver.Engine,
	complianceEngine *compliance.Engine,
	publisher *events.Publisher,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ScheduleService {
	if engine == nil {
		engine = solver.NewEngine(solver.Options{}, logger)
	}
	if complianceEngine == nil {
		complianceEngine = compliance.NewEngine(compliance.DefaultThresholds())
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		assignments: assignments,
		people:      people,
		templates:   templates,
		blocks:      blocks,
		absences:    absences,
		constraints: constraints,
		engine:      engine,
		compliance:  complianceEngine,
		publisher:   publisher,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Solve runs the engine over the requested horizon. Infeasible and partial
// outcomes are results, not errors; the caller inspects Status and the
// blocking set.
func (s *ScheduleService) Solve(ctx context.Context, actor string, req SolveRequest) (*solver.Result, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid solve payload")
	}
	if !req.End.After(req.Start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end must be after start")
	}

	inst, err := s.buildInstance(ctx, models.DateRange{Start: req.Start, End: req.End})
	if err != nil {
		return nil, err
	}

	opts := solver.Options{Algorithm: req.Algorithm}
	if req.TimeoutSec > 0 {
		opts.Timeout = time.Duration(req.TimeoutSec) * time.Second
	}
	result, err := s.engine.Solve(ctx, *inst, opts)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "solver rejected instance")
	}
	s.metrics.ObserveSolve(string(result.Algorithm), string(result.Status), result.NodesExplored, result.Runtime)

	if req.Commit && len(result.Assignments) > 0 {
		if err := s.commit(ctx, actor, result); err != nil {
			return nil, err
		}
	}
	s.logger.Info("solve finished",
		zap.String("status", string(result.Status)),
		zap.String("algorithm", string(result.Algorithm)),
		zap.Int("produced", len(result.Assignments)),
		zap.Bool("committed", req.Commit),
	)
	return result, nil
}

func (s *ScheduleService) buildInstance(ctx context.Context, dr models.DateRange) (*solver.Instance, error) {
	people, err := s.people.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load people")
	}
	templates, err := s.templates.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load templates")
	}
	blocks, err := s.blocks.ListOverlapping(ctx, dr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load blocks")
	}
	absences, err := s.absences.ListInRange(ctx, dr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load absences")
	}
	existing, err := s.assignments.ListInRange(ctx, dr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	var locked []models.Assignment
	for _, a := range existing {
		if a.Locked {
			locked = append(locked, a)
		}
	}
	constraints, err := s.constraints.ActiveSet(ctx)
	if err != nil {
		return nil, err
	}
	return &solver.Instance{
		People:      people,
		Templates:   templates,
		Blocks:      blocks,
		Absences:    absences,
		Locked:      locked,
		Constraints: constraints,
		Range:       dr,
		Compliance:  s.compliance,
	}, nil
}

func (s *ScheduleService) commit(ctx context.Context, actor string, result *solver.Result) error {
	confidence := 1.0
	if result.Partial {
		confidence = 0.5
	}
	provenance, err := json.Marshal(models.SolverProvenance{
		Solver:     "rota-solver",
		Algorithm:  string(result.Algorithm),
		Confidence: confidence,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode provenance")
	}
	batch := make([]models.Assignment, len(result.Assignments))
	copy(batch, result.Assignments)
	for i := range batch {
		batch[i].Provenance = types.JSONText(provenance)
		batch[i].CreatedBy = actor
	}

	tx, err := s.assignments.BeginTx(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	if err := s.assignments.BulkCreateWithTx(ctx, tx, batch); err != nil {
		_ = tx.Rollback()
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist schedule")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule")
	}
	result.Assignments = batch
	s.publisher.Emit(ctx, actor, "schedule", "", "solved", map[string]interface{}{
		"status":    result.Status,
		"algorithm": result.Algorithm,
		"count":     len(batch),
	})
	return nil
}
