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

// AbsenceRepository manages persistence for absence intervals.
type AbsenceRepository struct {
	db *sqlx.DB
}

// NewAbsenceRepository constructs an AbsenceRepository.
func NewAbsenceRepository(db *sqlx.DB) *AbsenceRepository {
	return &AbsenceRepository{db: db}
}

const absenceColumns = `id, person_id, start_date, end_date, kind, blocking, approved, created_at, updated_at`

// ListForPerson returns a person's absences ordered by start date.
func (r *AbsenceRepository) ListForPerson(ctx context.Context, personID string) ([]models.Absence, error) {
	query := fmt.Sprintf("SELECT %s FROM absences WHERE person_id = $1 ORDER BY start_date, id", absenceColumns)
	var absences []models.Absence
	if err := r.db.SelectContext(ctx, &absences, query, personID); err != nil {
		return nil, fmt.Errorf("list absences for person: %w", err)
	}
	return absences, nil
}

// ListInRange returns every absence intersecting the date range.
func (r *AbsenceRepository) ListInRange(ctx context.Context, dr models.DateRange) ([]models.Absence, error) {
	query := fmt.Sprintf(`SELECT %s FROM absences WHERE start_date <= $2 AND end_date >= $1
        ORDER BY start_date, person_id, id`, absenceColumns)
	var absences []models.Absence
	if err := r.db.SelectContext(ctx, &absences, query, dr.Start, dr.End); err != nil {
		return nil, fmt.Errorf("list absences in range: %w", err)
	}
	return absences, nil
}

// FindByID fetches one absence.
func (r *AbsenceRepository) FindByID(ctx context.Context, id string) (*models.Absence, error) {
	query := fmt.Sprintf("SELECT %s FROM absences WHERE id = $1", absenceColumns)
	var absence models.Absence
	if err := r.db.GetContext(ctx, &absence, query, id); err != nil {
		return nil, err
	}
	return &absence, nil
}

// Create inserts a new absence.
func (r *AbsenceRepository) Create(ctx context.Context, absence *models.Absence) error {
	if absence.ID == "" {
		absence.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if absence.CreatedAt.IsZero() {
		absence.CreatedAt = now
	}
	absence.UpdatedAt = now
	const query = `INSERT INTO absences (id, person_id, start_date, end_date, kind, blocking, approved, created_at, updated_at)
        VALUES (:id, :person_id, :start_date, :end_date, :kind, :blocking, :approved, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, absence); err != nil {
		return fmt.Errorf("create absence: %w", err)
	}
	return nil
}

// Update modifies an existing absence.
func (r *AbsenceRepository) Update(ctx context.Context, absence *models.Absence) error {
	absence.UpdatedAt = time.Now().UTC()
	const query = `UPDATE absences SET start_date = :start_date, end_date = :end_date, kind = :kind,
        blocking = :blocking, approved = :approved, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, absence)
	if err != nil {
		return fmt.Errorf("update absence: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an absence.
func (r *AbsenceRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM absences WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete absence: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
