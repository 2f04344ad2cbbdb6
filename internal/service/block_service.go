package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/events"
	"github.com/clinrota/rota-api/internal/models"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

type blockRepository interface {
	ListByYear(ctx context.Context, year int) ([]models.Block, error)
	FindByID(ctx context.Context, id string) (*models.Block, error)
	ListOverlapping(ctx context.Context, dr models.DateRange) ([]models.Block, error)
	CreateYear(ctx context.Context, blocks []models.Block) error
	YearExists(ctx context.Context, year int) (bool, error)
}

// BlockService manages the academic block calendar. Blocks are generated,
// never edited: the grid is deterministic from the year anchor.
type BlockService struct {
	repo      blockRepository
	publisher *events.Publisher
	logger    *zap.Logger
}

// NewBlockService constructs the block service.
func NewBlockService(repo blockRepository, publisher *events.Publisher, logger *zap.Logger) *BlockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlockService{repo: repo, publisher: publisher, logger: logger}
}

// ListByYear returns the block sequence for one academic year.
func (s *BlockService) ListByYear(ctx context.Context, year int) ([]models.Block, error) {
	blocks, err := s.repo.ListByYear(ctx, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list blocks")
	}
	return blocks, nil
}

// Get returns one block.
func (s *BlockService) Get(ctx context.Context, id string) (*models.Block, error) {
	block, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "block not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load block")
	}
	return block, nil
}

// ListOverlapping returns blocks intersecting the range, the solve horizon.
func (s *BlockService) ListOverlapping(ctx context.Context, dr models.DateRange) ([]models.Block, error) {
	blocks, err := s.repo.ListOverlapping(ctx, dr)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list blocks")
	}
	return blocks, nil
}

// GenerateYear derives and persists the thirteen-block grid for an academic
// year. Generating an existing year is rejected; blocks are immutable.
func (s *BlockService) GenerateYear(ctx context.Context, actor string, year int) ([]models.Block, error) {
	if year < 1900 || year > 2200 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "academic year out of range")
	}
	exists, err := s.repo.YearExists(ctx, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check year")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "blocks already generated for year")
	}
	blocks := models.GenerateBlocks(year)
	if err := s.repo.CreateYear(ctx, blocks); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist blocks")
	}
	s.publisher.Emit(ctx, actor, "block", "", "year_generated", map[string]int{"academic_year": year})
	return blocks, nil
}
