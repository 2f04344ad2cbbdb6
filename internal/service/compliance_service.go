package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/compliance"
	"github.com/clinrota/rota-api/internal/models"
	"github.com/clinrota/rota-api/internal/repository"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
	"github.com/clinrota/rota-api/pkg/jobs"
)

type compliancePersonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Person, error)
	ListActive(ctx context.Context) ([]models.Person, error)
}

type complianceAssignmentRepository interface {
	ListForPerson(ctx context.Context, personID string, dr models.DateRange) ([]models.Assignment, error)
}

type complianceTemplateRepository interface {
	List(ctx context.Context) ([]models.RotationTemplate, error)
}

type violationRepository interface {
	Record(ctx context.Context, v *models.Violation) error
	FindByID(ctx context.Context, id string) (*models.Violation, error)
	ListForPerson(ctx context.Context, personID string, dr models.DateRange) ([]models.Violation, error)
	Acknowledge(ctx context.Context, id, justification string) error
}

type complianceCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AcknowledgeViolationRequest records an accepted breach. The justification
// is mandatory.
type AcknowledgeViolationRequest struct {
	Violation     models.Violation `json:"violation" validate:"required"`
	Justification string           `json:"justification" validate:"required"`
}

// ComplianceService validates duty-hour law over people and the population.
// The rule engine itself is pure; this service feeds it persisted state,
// caches results and owns the acknowledgment workflow.
type ComplianceService struct {
	engine       *compliance.Engine
	people       compliancePersonRepository
	assignments  complianceAssignmentRepository
	templates    complianceTemplateRepository
	violations   violationRepository
	cache        complianceCache
	cacheTTL     time.Duration
	sweepWorkers int
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	sweepQueue   *jobs.Queue[sweepPayload]
}

// NewComplianceService constructs the compliance service.
func NewComplianceService(
	engine *compliance.Engine,
	people compliancePersonRepository,
	assignments complianceAssignmentRepository,
	templates complianceTemplateRepository,
	violations violationRepository,
	cache complianceCache,
	cacheTTL time.Duration,
	sweepWorkers int,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ComplianceService {
	if engine == nil {
		engine = compliance.NewEngine(compliance.DefaultThresholds())
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if sweepWorkers <= 0 {
		sweepWorkers = 4
	}
	s := &ComplianceService{
		engine:       engine,
		people:       people,
		assignments:  assignments,
		templates:    templates,
		violations:   violations,
		cache:        cache,
		cacheTTL:     cacheTTL,
		sweepWorkers: sweepWorkers,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
	}
	s.sweepQueue = jobs.NewQueue("compliance-sweep", s.handleSweepJob, jobs.QueueConfig{
		Workers: sweepWorkers,
		Logger:  logger,
	})
	return s
}

// StartSweeper launches the background sweep workers.
func (s *ComplianceService) StartSweeper(ctx context.Context) {
	s.sweepQueue.Start(ctx)
}

// StopSweeper drains the background sweep workers.
func (s *ComplianceService) StopSweeper() {
	s.sweepQueue.Stop()
}

// ValidatePerson evaluates one person over a date range, reading through the
// cache. Acknowledged violations are reported separately and do not count
// against the compliance score.
func (s *ComplianceService) ValidatePerson(ctx context.Context, personID string, dr models.DateRange) (*models.ComplianceResult, error) {
	key := repository.ComplianceCacheKey(personID, dr.Start, dr.End)
	if s.cache != nil {
		var cached models.ComplianceResult
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheLookup(true)
			return &cached, nil
		}
		s.metrics.RecordCacheLookup(false)
	}

	result, err := s.validate(ctx, personID, dr)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
			s.logger.Warn("cache compliance result", zap.String("person_id", personID), zap.Error(err))
		}
	}
	return result, nil
}

func (s *ComplianceService) validate(ctx context.Context, personID string, dr models.DateRange) (*models.ComplianceResult, error) {
	person, err := s.people.FindByID(ctx, personID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	assignments, err := s.assignments.ListForPerson(ctx, personID, dr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	templates, err := s.templateIndex(ctx)
	if err != nil {
		return nil, err
	}

	result := s.engine.ValidatePerson(compliance.Input{
		Person:      *person,
		Assignments: assignments,
		Templates:   templates,
		Range:       dr,
	})

	acknowledged, err := s.violations.ListForPerson(ctx, personID, dr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load acknowledgments")
	}
	s.splitAcknowledged(&result, acknowledged)

	for _, v := range result.Violations {
		s.metrics.CountViolation(v.Rule, string(v.Severity))
	}
	return &result, nil
}

// splitAcknowledged moves engine findings that match a persisted
// acknowledgment into the Acknowledged list and restores their score weight.
func (s *ComplianceService) splitAcknowledged(result *models.ComplianceResult, persisted []models.Violation) {
	acked := make(map[string]models.Violation)
	for _, v := range persisted {
		if v.Acknowledged {
			acked[violationKey(v)] = v
		}
	}
	if len(acked) == 0 {
		return
	}
	var open []models.Violation
	for _, v := range result.Violations {
		if prior, ok := acked[violationKey(v)]; ok {
			v.Acknowledged = true
			v.Justification = prior.Justification
			result.Acknowledged = append(result.Acknowledged, v)
			result.Score += v.Severity.Weight()
			continue
		}
		open = append(open, v)
	}
	if result.Score > 100 {
		result.Score = 100
	}
	result.Violations = open
	result.IsCompliant = len(open) == 0
}

func violationKey(v models.Violation) string {
	return v.Rule + "|" + v.PersonID + "|" + v.Date.Format("2006-01-02") + "|" + string(v.Period)
}

// ValidatePopulation runs the person check for every active person with a
// bounded worker pool. One failing record lands in Failed; it never aborts
// the rest of the population.
func (s *ComplianceService) ValidatePopulation(ctx context.Context, dr models.DateRange) (*models.PopulationComplianceResult, error) {
	started := time.Now()
	people, err := s.people.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list people")
	}

	type outcome struct {
		personID string
		result   *models.ComplianceResult
		err      error
	}

	work := make(chan models.Person)
	results := make(chan outcome)
	var wg sync.WaitGroup
	for i := 0; i < s.sweepWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for person := range work {
				res, err := s.ValidatePerson(ctx, person.ID, dr)
				results <- outcome{personID: person.ID, result: res, err: err}
			}
		}()
	}
	go func() {
		for _, p := range people {
			work <- p
		}
		close(work)
		wg.Wait()
		close(results)
	}()

	population := &models.PopulationComplianceResult{}
	for out := range results {
		if out.err != nil {
			if population.Failed == nil {
				population.Failed = make(map[string]string)
			}
			population.Failed[out.personID] = out.err.Error()
			continue
		}
		population.Results = append(population.Results, *out.result)
	}
	sort.Slice(population.Results, func(i, j int) bool {
		return population.Results[i].PersonID < population.Results[j].PersonID
	})

	s.metrics.ObserveSweep(time.Since(started))
	return population, nil
}

// EnqueueSweep schedules an asynchronous population sweep. Each person is a
// separate job so a slow record does not hold up the rest.
func (s *ComplianceService) EnqueueSweep(ctx context.Context, dr models.DateRange) error {
	people, err := s.people.ListActive(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list people")
	}
	for _, p := range people {
		job := jobs.Job[sweepPayload]{
			ID:      uuid.NewString(),
			Type:    "validate-person",
			Payload: sweepPayload{PersonID: p.ID, Range: dr},
		}
		if err := s.sweepQueue.Enqueue(job); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue sweep")
		}
	}
	return nil
}

type sweepPayload struct {
	PersonID string
	Range    models.DateRange
}

func (s *ComplianceService) handleSweepJob(ctx context.Context, job jobs.Job[sweepPayload]) error {
	payload := job.Payload
	// Bypass the cache so the sweep refreshes it.
	result, err := s.validate(ctx, payload.PersonID, payload.Range)
	if err != nil {
		return err
	}
	if s.cache != nil {
		key := repository.ComplianceCacheKey(payload.PersonID, payload.Range.Start, payload.Range.End)
		if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
			s.logger.Warn("cache sweep result", zap.String("person_id", payload.PersonID), zap.Error(err))
		}
	}
	return nil
}

// Acknowledge persists an accepted violation with its mandatory
// justification and invalidates affected cached results.
func (s *ComplianceService) Acknowledge(ctx context.Context, req AcknowledgeViolationRequest) (*models.Violation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "justification is required")
	}
	v := req.Violation
	v.Acknowledged = true
	v.Justification = &req.Justification
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if err := s.violations.Record(ctx, &v); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record acknowledgment")
	}
	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, repository.CacheKeyCompliancePattern); err != nil {
			s.logger.Warn("bust compliance cache", zap.Error(err))
		}
	}
	return &v, nil
}

func (s *ComplianceService) templateIndex(ctx context.Context) (map[string]models.RotationTemplate, error) {
	list, err := s.templates.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rotation templates")
	}
	templates := make(map[string]models.RotationTemplate, len(list))
	for _, t := range list {
		templates[t.ID] = t
	}
	return templates, nil
}
