package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinrota/rota-api/internal/models"
)

// RotationTemplateRepository manages persistence for rotation templates.
type RotationTemplateRepository struct {
	db *sqlx.DB
}

// NewRotationTemplateRepository constructs a RotationTemplateRepository.
func NewRotationTemplateRepository(db *sqlx.DB) *RotationTemplateRepository {
	return &RotationTemplateRepository{db: db}
}

const templateColumns = `id, name, kind, min_per_slot, max_per_slot, required_specialty, supervision_ratio,
        seniority_floor, leave_eligible, includes_weekends, hours_per_slot, post_call_rest_hours, created_at, updated_at`

// List returns all templates ordered by name.
func (r *RotationTemplateRepository) List(ctx context.Context) ([]models.RotationTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM rotation_templates ORDER BY name, id", templateColumns)
	var templates []models.RotationTemplate
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("list rotation templates: %w", err)
	}
	return templates, nil
}

// FindByID fetches one template.
func (r *RotationTemplateRepository) FindByID(ctx context.Context, id string) (*models.RotationTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM rotation_templates WHERE id = $1", templateColumns)
	var tpl models.RotationTemplate
	if err := r.db.GetContext(ctx, &tpl, query, id); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Create inserts a new template.
func (r *RotationTemplateRepository) Create(ctx context.Context, tpl *models.RotationTemplate) error {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	const query = `INSERT INTO rotation_templates (id, name, kind, min_per_slot, max_per_slot, required_specialty,
        supervision_ratio, seniority_floor, leave_eligible, includes_weekends, hours_per_slot, post_call_rest_hours, created_at, updated_at)
        VALUES (:id, :name, :kind, :min_per_slot, :max_per_slot, :required_specialty,
        :supervision_ratio, :seniority_floor, :leave_eligible, :includes_weekends, :hours_per_slot, :post_call_rest_hours, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tpl); err != nil {
		return fmt.Errorf("create rotation template: %w", err)
	}
	return nil
}

// Update modifies an existing template.
func (r *RotationTemplateRepository) Update(ctx context.Context, tpl *models.RotationTemplate) error {
	tpl.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rotation_templates SET name = :name, kind = :kind, min_per_slot = :min_per_slot,
        max_per_slot = :max_per_slot, required_specialty = :required_specialty, supervision_ratio = :supervision_ratio,
        seniority_floor = :seniority_floor, leave_eligible = :leave_eligible, includes_weekends = :includes_weekends,
        hours_per_slot = :hours_per_slot, post_call_rest_hours = :post_call_rest_hours, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, tpl)
	if err != nil {
		return fmt.Errorf("update rotation template: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// InUse reports whether any assignment references the template. Referenced
// templates cannot be deleted.
func (r *RotationTemplateRepository) InUse(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM assignments WHERE template_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check template use: %w", err)
	}
	return true, nil
}

// Delete removes an unreferenced template.
func (r *RotationTemplateRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM rotation_templates WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete rotation template: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
