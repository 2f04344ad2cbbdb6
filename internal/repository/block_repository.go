package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinrota/rota-api/internal/models"
)

// BlockRepository manages persistence for academic blocks.
type BlockRepository struct {
	db *sqlx.DB
}

// NewBlockRepository constructs a BlockRepository.
func NewBlockRepository(db *sqlx.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// ListByYear returns the blocks of one academic year in sequence order.
func (r *BlockRepository) ListByYear(ctx context.Context, year int) ([]models.Block, error) {
	const query = `SELECT id, academic_year, sequence, start_date, end_date, created_at
        FROM blocks WHERE academic_year = $1 ORDER BY sequence`
	var blocks []models.Block
	if err := r.db.SelectContext(ctx, &blocks, query, year); err != nil {
		return nil, fmt.Errorf("list blocks for year %d: %w", year, err)
	}
	return blocks, nil
}

// FindByID fetches one block.
func (r *BlockRepository) FindByID(ctx context.Context, id string) (*models.Block, error) {
	const query = `SELECT id, academic_year, sequence, start_date, end_date, created_at FROM blocks WHERE id = $1`
	var block models.Block
	if err := r.db.GetContext(ctx, &block, query, id); err != nil {
		return nil, err
	}
	return &block, nil
}

// ListOverlapping returns blocks intersecting the date range, ordered by start.
func (r *BlockRepository) ListOverlapping(ctx context.Context, dr models.DateRange) ([]models.Block, error) {
	const query = `SELECT id, academic_year, sequence, start_date, end_date, created_at
        FROM blocks WHERE start_date <= $2 AND end_date >= $1 ORDER BY start_date`
	var blocks []models.Block
	if err := r.db.SelectContext(ctx, &blocks, query, dr.Start, dr.End); err != nil {
		return nil, fmt.Errorf("list blocks in range: %w", err)
	}
	return blocks, nil
}

// CreateYear inserts the full block sequence for one academic year inside a
// transaction. Blocks are immutable once created; re-generating an existing
// year is rejected by the unique (academic_year, sequence) index.
func (r *BlockRepository) CreateYear(ctx context.Context, blocks []models.Block) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create year: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	const query = `INSERT INTO blocks (id, academic_year, sequence, start_date, end_date, created_at)
        VALUES (:id, :academic_year, :sequence, :start_date, :end_date, :created_at)`
	for i := range blocks {
		if blocks[i].ID == "" {
			blocks[i].ID = uuid.NewString()
		}
		if blocks[i].CreatedAt.IsZero() {
			blocks[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, blocks[i]); err != nil {
			return fmt.Errorf("insert block %d: %w", blocks[i].Sequence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create year: %w", err)
	}
	return nil
}

// YearExists reports whether blocks were already generated for the year.
func (r *BlockRepository) YearExists(ctx context.Context, year int) (bool, error) {
	const query = `SELECT COUNT(*) FROM blocks WHERE academic_year = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, year); err != nil {
		return false, fmt.Errorf("check year %d: %w", year, err)
	}
	return count > 0, nil
}
