package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/clinrota/rota-api/internal/models"
)

// ConstraintConfigRepository persists population-wide constraint rows.
type ConstraintConfigRepository struct {
	db *sqlx.DB
}

// NewConstraintConfigRepository constructs a ConstraintConfigRepository.
func NewConstraintConfigRepository(db *sqlx.DB) *ConstraintConfigRepository {
	return &ConstraintConfigRepository{db: db}
}

const constraintColumns = `id, name, kind, hard, priority, enabled, params, created_at, updated_at`

// List returns all configurations, hard rules first then by priority.
func (r *ConstraintConfigRepository) List(ctx context.Context) ([]models.ConstraintConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM constraint_configs ORDER BY hard DESC, priority DESC, name`, constraintColumns)
	var configs []models.ConstraintConfig
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("list constraint configs: %w", err)
	}
	return configs, nil
}

// ListEnabled returns only the configurations visible to the solver.
func (r *ConstraintConfigRepository) ListEnabled(ctx context.Context) ([]models.ConstraintConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM constraint_configs WHERE enabled = true ORDER BY hard DESC, priority DESC, name`, constraintColumns)
	var configs []models.ConstraintConfig
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("list enabled constraint configs: %w", err)
	}
	return configs, nil
}

// FindByName fetches a configuration by its unique name.
func (r *ConstraintConfigRepository) FindByName(ctx context.Context, name string) (*models.ConstraintConfig, error) {
	query := fmt.Sprintf("SELECT %s FROM constraint_configs WHERE name = $1", constraintColumns)
	var cfg models.ConstraintConfig
	if err := r.db.GetContext(ctx, &cfg, query, name); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExistsByName checks name uniqueness, optionally excluding an ID.
func (r *ConstraintConfigRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	query := "SELECT 1 FROM constraint_configs WHERE name = $1"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check constraint name: %w", err)
	}
	return true, nil
}

// Create inserts a new configuration row.
func (r *ConstraintConfigRepository) Create(ctx context.Context, cfg *models.ConstraintConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if len(cfg.Params) == 0 {
		cfg.Params = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	const query = `INSERT INTO constraint_configs (id, name, kind, hard, priority, enabled, params, created_at, updated_at)
        VALUES (:id, :name, :kind, :hard, :priority, :enabled, :params, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("create constraint config: %w", err)
	}
	return nil
}

// Update modifies an existing configuration.
func (r *ConstraintConfigRepository) Update(ctx context.Context, cfg *models.ConstraintConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	const query = `UPDATE constraint_configs SET kind = :kind, hard = :hard, priority = :priority,
        enabled = :enabled, params = :params, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, cfg)
	if err != nil {
		return fmt.Errorf("update constraint config: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetEnabled flips solver visibility without touching parameters.
func (r *ConstraintConfigRepository) SetEnabled(ctx context.Context, name string, enabled bool) error {
	const query = `UPDATE constraint_configs SET enabled = $1, updated_at = $2 WHERE name = $3`
	res, err := r.db.ExecContext(ctx, query, enabled, time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("toggle constraint config: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
