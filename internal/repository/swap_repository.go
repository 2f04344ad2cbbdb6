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

// SwapRepository persists swap lifecycle records.
type SwapRepository struct {
	db *sqlx.DB
}

// NewSwapRepository constructs a SwapRepository.
func NewSwapRepository(db *sqlx.DB) *SwapRepository {
	return &SwapRepository{db: db}
}

const swapColumns = `id, source_assignment_id, target_assignment_id, source_version, target_version, status,
        proposed_by, proposed_at, validated_at, validation, override_reason, executed_at, rollback_deadline,
        rolled_back_at, rollback_reason, created_at, updated_at`

func (r *SwapRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a swap in PROPOSED state.
func (r *SwapRepository) Create(ctx context.Context, swap *models.SwapRecord) error {
	if swap.ID == "" {
		swap.ID = uuid.NewString()
	}
	if swap.Status == "" {
		swap.Status = models.SwapStatusProposed
	}
	if len(swap.Validation) == 0 {
		swap.Validation = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if swap.ProposedAt.IsZero() {
		swap.ProposedAt = now
	}
	if swap.CreatedAt.IsZero() {
		swap.CreatedAt = now
	}
	swap.UpdatedAt = now
	const query = `INSERT INTO swaps (id, source_assignment_id, target_assignment_id, source_version, target_version,
        status, proposed_by, proposed_at, validated_at, validation, override_reason, executed_at, rollback_deadline,
        rolled_back_at, rollback_reason, created_at, updated_at)
        VALUES (:id, :source_assignment_id, :target_assignment_id, :source_version, :target_version,
        :status, :proposed_by, :proposed_at, :validated_at, :validation, :override_reason, :executed_at, :rollback_deadline,
        :rolled_back_at, :rollback_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, swap); err != nil {
		return fmt.Errorf("create swap: %w", err)
	}
	return nil
}

// FindByID fetches one swap record.
func (r *SwapRepository) FindByID(ctx context.Context, id string) (*models.SwapRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM swaps WHERE id = $1", swapColumns)
	var swap models.SwapRecord
	if err := r.db.GetContext(ctx, &swap, query, id); err != nil {
		return nil, err
	}
	return &swap, nil
}

// ListByStatus returns swaps in the given state, newest first.
func (r *SwapRepository) ListByStatus(ctx context.Context, status models.SwapStatus) ([]models.SwapRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM swaps WHERE status = $1 ORDER BY proposed_at DESC, id", swapColumns)
	var swaps []models.SwapRecord
	if err := r.db.SelectContext(ctx, &swaps, query, status); err != nil {
		return nil, fmt.Errorf("list swaps: %w", err)
	}
	return swaps, nil
}

// ListForAssignment returns every swap touching the assignment, newest first.
func (r *SwapRepository) ListForAssignment(ctx context.Context, assignmentID string) ([]models.SwapRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM swaps WHERE source_assignment_id = $1 OR target_assignment_id = $1
        ORDER BY proposed_at DESC, id`, swapColumns)
	var swaps []models.SwapRecord
	if err := r.db.SelectContext(ctx, &swaps, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list swaps for assignment: %w", err)
	}
	return swaps, nil
}

// LastExecutedForPerson returns the most recent executed swap touching any of
// the person's assignments, or nil. Feeds auto-match recency ranking.
func (r *SwapRepository) LastExecutedForPerson(ctx context.Context, personID string) (*time.Time, error) {
	const query = `SELECT MAX(s.executed_at) FROM swaps s
        JOIN assignments a ON a.id IN (s.source_assignment_id, s.target_assignment_id)
        WHERE s.status = $1 AND a.person_id = $2`
	var last sql.NullTime
	if err := r.db.GetContext(ctx, &last, query, models.SwapStatusExecuted, personID); err != nil {
		return nil, fmt.Errorf("last executed swap: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time.UTC()
	return &t, nil
}

// UpdateStatus advances the lifecycle, persisting whichever stage fields the
// caller filled in. The WHERE clause pins the expected current status so two
// concurrent transitions cannot both win.
func (r *SwapRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, swap *models.SwapRecord, expected models.SwapStatus) error {
	swap.UpdatedAt = time.Now().UTC()
	const query = `UPDATE swaps SET status = $1, source_version = $2, target_version = $3, validated_at = $4,
        validation = $5, override_reason = $6, executed_at = $7, rollback_deadline = $8, rolled_back_at = $9,
        rollback_reason = $10, updated_at = $11
        WHERE id = $12 AND status = $13`
	res, err := r.exec(exec).ExecContext(ctx, query,
		swap.Status, swap.SourceVersion, swap.TargetVersion, swap.ValidatedAt,
		swap.Validation, swap.OverrideReason, swap.ExecutedAt, swap.RollbackDeadline, swap.RolledBackAt,
		swap.RollbackReason, swap.UpdatedAt, swap.ID, expected)
	if err != nil {
		return fmt.Errorf("update swap status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("swap rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
