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

// ViolationRepository persists acknowledged and recorded rule breaches.
// Solver and validation output is ephemeral; only violations someone acted
// on, acknowledgments in particular, become rows.
type ViolationRepository struct {
	db *sqlx.DB
}

// NewViolationRepository constructs a ViolationRepository.
func NewViolationRepository(db *sqlx.DB) *ViolationRepository {
	return &ViolationRepository{db: db}
}

const violationColumns = `id, rule, person_id, slot_date, slot_period, severity, message, detail, acknowledged, justification, created_at`

// Record inserts a violation row.
func (r *ViolationRepository) Record(ctx context.Context, v *models.Violation) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO violations (id, rule, person_id, slot_date, slot_period, severity, message, detail, acknowledged, justification, created_at)
        VALUES (:id, :rule, :person_id, :slot_date, :slot_period, :severity, :message, :detail, :acknowledged, :justification, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("record violation: %w", err)
	}
	return nil
}

// FindByID fetches one violation.
func (r *ViolationRepository) FindByID(ctx context.Context, id string) (*models.Violation, error) {
	query := fmt.Sprintf("SELECT %s FROM violations WHERE id = $1", violationColumns)
	var v models.Violation
	if err := r.db.GetContext(ctx, &v, query, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListForPerson returns a person's recorded violations inside the range.
func (r *ViolationRepository) ListForPerson(ctx context.Context, personID string, dr models.DateRange) ([]models.Violation, error) {
	query := fmt.Sprintf(`SELECT %s FROM violations WHERE person_id = $1 AND slot_date BETWEEN $2 AND $3
        ORDER BY slot_date, rule, id`, violationColumns)
	var violations []models.Violation
	if err := r.db.SelectContext(ctx, &violations, query, personID, dr.Start, dr.End); err != nil {
		return nil, fmt.Errorf("list violations for person: %w", err)
	}
	return violations, nil
}

// Acknowledge marks a violation as accepted with the mandatory justification.
func (r *ViolationRepository) Acknowledge(ctx context.Context, id, justification string) error {
	const query = `UPDATE violations SET acknowledged = true, justification = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, justification)
	if err != nil {
		return fmt.Errorf("acknowledge violation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
