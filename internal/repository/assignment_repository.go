package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/clinrota/rota-api/internal/models"
)

// ErrVersionConflict signals an optimistic-concurrency failure: the row's
// version moved past the one the caller read.
var ErrVersionConflict = errors.New("assignment version conflict")

// AssignmentRepository persists half-day assignments. Every mutation is
// guarded by the version stamp.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `id, person_id, template_id, block_id, slot_date, slot_period, role, locked, version,
        override_justification, provenance, created_by, created_at, updated_at`

func (r *AssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns assignments matching the provided filters.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.PersonID != "" {
		conditions = append(conditions, fmt.Sprintf("person_id = $%d", len(args)+1))
		args = append(args, filter.PersonID)
	}
	if filter.TemplateID != "" {
		conditions = append(conditions, fmt.Sprintf("template_id = $%d", len(args)+1))
		args = append(args, filter.TemplateID)
	}
	if filter.BlockID != "" {
		conditions = append(conditions, fmt.Sprintf("block_id = $%d", len(args)+1))
		args = append(args, filter.BlockID)
	}
	if filter.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, filter.Role)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("slot_date >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("slot_date <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM assignments WHERE %s ORDER BY slot_date, slot_period, template_id, id LIMIT %d OFFSET %d",
		assignmentColumns, where, size, offset)

	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM assignments WHERE %s", where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}
	return assignments, total, nil
}

// ListInRange returns all assignments whose slot date falls inside the range,
// without paging. The solver and compliance sweeps work on full windows.
func (r *AssignmentRepository) ListInRange(ctx context.Context, dr models.DateRange) ([]models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE slot_date BETWEEN $1 AND $2
        ORDER BY slot_date, slot_period, template_id, id`, assignmentColumns)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, dr.Start, dr.End); err != nil {
		return nil, fmt.Errorf("list assignments in range: %w", err)
	}
	return assignments, nil
}

// ListForPerson returns one person's assignments inside the range.
func (r *AssignmentRepository) ListForPerson(ctx context.Context, personID string, dr models.DateRange) ([]models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE person_id = $1 AND slot_date BETWEEN $2 AND $3
        ORDER BY slot_date, slot_period, id`, assignmentColumns)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, personID, dr.Start, dr.End); err != nil {
		return nil, fmt.Errorf("list assignments for person: %w", err)
	}
	return assignments, nil
}

// FindByID fetches one assignment.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE id = $1", assignmentColumns)
	var a models.Assignment
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new assignment at version 1.
func (r *AssignmentRepository) Create(ctx context.Context, a *models.Assignment) error {
	return r.create(ctx, r.db, a)
}

// CreateWithTx inserts an assignment using an existing transaction.
func (r *AssignmentRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, a *models.Assignment) error {
	return r.create(ctx, tx, a)
}

func (r *AssignmentRepository) create(ctx context.Context, exec sqlx.ExtContext, a *models.Assignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Version == 0 {
		a.Version = 1
	}
	if len(a.Provenance) == 0 {
		a.Provenance = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	const query = `INSERT INTO assignments (id, person_id, template_id, block_id, slot_date, slot_period, role, locked,
        version, override_justification, provenance, created_by, created_at, updated_at)
        VALUES (:id, :person_id, :template_id, :block_id, :slot_date, :slot_period, :role, :locked,
        :version, :override_justification, :provenance, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, a); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// BulkCreateWithTx inserts assignments using an existing transaction. The
// caller owns commit and rollback; one failed insert aborts the whole batch.
func (r *AssignmentRepository) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, assignments []models.Assignment) error {
	for i := range assignments {
		if err := r.create(ctx, tx, &assignments[i]); err != nil {
			return err
		}
	}
	return nil
}

// UpdateVersioned applies a compare-and-swap update: the row must still carry
// the version the caller read. On success the stored version increments and
// the struct reflects it.
func (r *AssignmentRepository) UpdateVersioned(ctx context.Context, exec sqlx.ExtContext, a *models.Assignment) error {
	expected := a.Version
	now := time.Now().UTC()
	const query = `UPDATE assignments SET person_id = $1, template_id = $2, block_id = $3, slot_date = $4, slot_period = $5,
        role = $6, locked = $7, override_justification = $8, provenance = $9, version = version + 1, updated_at = $10
        WHERE id = $11 AND version = $12`
	res, err := r.exec(exec).ExecContext(ctx, query,
		a.PersonID, a.TemplateID, a.BlockID, a.SlotDate, a.SlotPeriod,
		a.Role, a.Locked, a.OverrideJustification, a.Provenance, now, a.ID, expected)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assignment rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	a.Version = expected + 1
	a.UpdatedAt = now
	return nil
}

// DeleteVersioned removes an assignment only if the caller's version is
// current.
func (r *AssignmentRepository) DeleteVersioned(ctx context.Context, exec sqlx.ExtContext, id string, version int) error {
	const query = `DELETE FROM assignments WHERE id = $1 AND version = $2`
	res, err := r.exec(exec).ExecContext(ctx, query, id, version)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assignment rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// SetLocked toggles the manual-lock flag, a versioned mutation like any other.
func (r *AssignmentRepository) SetLocked(ctx context.Context, id string, version int, locked bool) error {
	const query = `UPDATE assignments SET locked = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4`
	res, err := r.db.ExecContext(ctx, query, locked, time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("lock assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assignment rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// HasPrimaryInSlot reports whether the person already holds a primary
// assignment in the slot, optionally excluding one assignment ID.
func (r *AssignmentRepository) HasPrimaryInSlot(ctx context.Context, personID string, slot models.SlotRef, excludeID string) (bool, error) {
	query := `SELECT 1 FROM assignments WHERE person_id = $1 AND slot_date = $2 AND slot_period = $3 AND role = $4`
	args := []interface{}{personID, slot.Date, slot.Period, models.AssignmentRolePrimary}
	if excludeID != "" {
		query += " AND id <> $5"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check primary slot: %w", err)
	}
	return true, nil
}

// BeginTx starts a transaction for multi-row operations.
func (r *AssignmentRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin assignments tx: %w", err)
	}
	return tx, nil
}
