package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/constraint"
	"github.com/clinrota/rota-api/internal/models"
	"github.com/clinrota/rota-api/internal/repository"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

type constraintConfigRepository interface {
	List(ctx context.Context) ([]models.ConstraintConfig, error)
	ListEnabled(ctx context.Context) ([]models.ConstraintConfig, error)
	FindByName(ctx context.Context, name string) (*models.ConstraintConfig, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, cfg *models.ConstraintConfig) error
	Update(ctx context.Context, cfg *models.ConstraintConfig) error
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

type constraintCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// UpsertConstraintRequest holds payload for creating or updating a
// constraint configuration.
type UpsertConstraintRequest struct {
	Name     string                `json:"name" validate:"required"`
	Kind     models.ConstraintKind `json:"kind" validate:"required"`
	Hard     bool                  `json:"hard"`
	Priority int                   `json:"priority" validate:"gte=0"`
	Enabled  bool                  `json:"enabled"`
	Params   types.JSONText        `json:"params"`
}

// ConstraintService manages the population-wide constraint set. Changes
// apply to future solver runs only; existing assignments are untouched until
// revalidated.
type ConstraintService struct {
	repo      constraintConfigRepository
	cache     constraintCache
	cacheTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConstraintService constructs the constraint service.
func NewConstraintService(repo constraintConfigRepository, cache constraintCache, cacheTTL time.Duration, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ConstraintService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ConstraintService{repo: repo, cache: cache, cacheTTL: cacheTTL, metrics: metrics, validator: validate, logger: logger}
}

// List returns the full configuration set, hard rules first.
func (s *ConstraintService) List(ctx context.Context) ([]models.ConstraintConfig, error) {
	configs, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list constraints")
	}
	return configs, nil
}

// Get returns one configuration by name.
func (s *ConstraintService) Get(ctx context.Context, name string) (*models.ConstraintConfig, error) {
	cfg, err := s.repo.FindByName(ctx, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "constraint not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load constraint")
	}
	return cfg, nil
}

// Create registers a new configuration row. The name must be unique and the
// kind plus params must instantiate cleanly.
func (s *ConstraintService) Create(ctx context.Context, req UpsertConstraintRequest) (*models.ConstraintConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid constraint payload")
	}
	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "constraint name already used")
	}
	cfg := &models.ConstraintConfig{
		Name:     req.Name,
		Kind:     req.Kind,
		Hard:     req.Hard,
		Priority: req.Priority,
		Enabled:  req.Enabled,
		Params:   req.Params,
	}
	if _, err := constraint.FromConfig(*cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "constraint does not instantiate")
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create constraint")
	}
	s.bust(ctx)
	return cfg, nil
}

// Update modifies an existing configuration in place, keyed by name.
func (s *ConstraintService) Update(ctx context.Context, name string, req UpsertConstraintRequest) (*models.ConstraintConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid constraint payload")
	}
	cfg, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	cfg.Kind = req.Kind
	cfg.Hard = req.Hard
	cfg.Priority = req.Priority
	cfg.Enabled = req.Enabled
	cfg.Params = req.Params
	if _, err := constraint.FromConfig(*cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "constraint does not instantiate")
	}
	if err := s.repo.Update(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update constraint")
	}
	s.bust(ctx)
	return cfg, nil
}

// SetEnabled toggles solver visibility. A disabled rule keeps its parameters.
func (s *ConstraintService) SetEnabled(ctx context.Context, name string, enabled bool) error {
	if err := s.repo.SetEnabled(ctx, name, enabled); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "constraint not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle constraint")
	}
	s.bust(ctx)
	return nil
}

// ActiveSet builds the enabled constraint objects for a solver run, reading
// through the cache.
func (s *ConstraintService) ActiveSet(ctx context.Context) ([]constraint.Constraint, error) {
	var configs []models.ConstraintConfig
	if s.cache != nil {
		if err := s.cache.Get(ctx, repository.CacheKeyConstraints, &configs); err == nil {
			s.metrics.RecordCacheLookup(true)
			return s.instantiate(configs)
		}
		s.metrics.RecordCacheLookup(false)
	}
	configs, err := s.repo.ListEnabled(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enabled constraints")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, repository.CacheKeyConstraints, configs, s.cacheTTL); err != nil {
			s.logger.Warn("cache enabled constraints", zap.Error(err))
		}
	}
	return s.instantiate(configs)
}

// Seed inserts the default rule set for rows that do not exist yet.
func (s *ConstraintService) Seed(ctx context.Context) error {
	for _, cfg := range constraint.Defaults() {
		exists, err := s.repo.ExistsByName(ctx, cfg.Name, "")
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check default constraint")
		}
		if exists {
			continue
		}
		row := cfg
		if err := s.repo.Create(ctx, &row); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seed constraint")
		}
		s.logger.Info("seeded constraint", zap.String("name", cfg.Name))
	}
	s.bust(ctx)
	return nil
}

func (s *ConstraintService) instantiate(configs []models.ConstraintConfig) ([]constraint.Constraint, error) {
	reg, err := constraint.FromConfigs(configs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to instantiate constraints")
	}
	return reg.Enabled(), nil
}

func (s *ConstraintService) bust(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, repository.CacheKeyConstraints); err != nil {
		s.logger.Warn("bust constraint cache", zap.Error(err))
	}
}
