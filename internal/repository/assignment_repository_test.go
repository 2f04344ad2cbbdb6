package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrota/rota-api/internal/models"
)

func newAssignmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAssignmentRepositoryCreateDefaultsVersion(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	payload := &models.Assignment{
		PersonID:   "p-1",
		TemplateID: "tpl-1",
		BlockID:    "blk-1",
		SlotDate:   time.Date(2026, time.July, 6, 0, 0, 0, 0, time.UTC),
		SlotPeriod: models.SlotPeriodAM,
		Role:       models.AssignmentRolePrimary,
		CreatedBy:  "scheduler",
	}
	require.NoError(t, repo.Create(context.Background(), payload))
	assert.NotEmpty(t, payload.ID)
	assert.Equal(t, 1, payload.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryUpdateVersionedWinner(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $11 AND version = $12")).
		WithArgs("p-1", "tpl-1", "blk-1", sqlmock.AnyArg(), string(models.SlotPeriodAM),
			string(models.AssignmentRolePrimary), false, nil, types.JSONText(`{}`), sqlmock.AnyArg(), "asg-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	payload := &models.Assignment{
		ID:         "asg-1",
		PersonID:   "p-1",
		TemplateID: "tpl-1",
		BlockID:    "blk-1",
		SlotDate:   time.Date(2026, time.July, 6, 0, 0, 0, 0, time.UTC),
		SlotPeriod: models.SlotPeriodAM,
		Role:       models.AssignmentRolePrimary,
		Provenance: types.JSONText(`{}`),
		Version:    3,
	}
	require.NoError(t, repo.UpdateVersioned(context.Background(), nil, payload))
	assert.Equal(t, 4, payload.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryUpdateVersionedLoser(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	// The row moved to a newer version between read and write.
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $11 AND version = $12")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	payload := &models.Assignment{
		ID:         "asg-1",
		PersonID:   "p-1",
		TemplateID: "tpl-1",
		BlockID:    "blk-1",
		SlotDate:   time.Date(2026, time.July, 6, 0, 0, 0, 0, time.UTC),
		SlotPeriod: models.SlotPeriodAM,
		Role:       models.AssignmentRolePrimary,
		Provenance: types.JSONText(`{}`),
		Version:    2,
	}
	err := repo.UpdateVersioned(context.Background(), nil, payload)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 2, payload.Version, "stale struct must keep its version")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryDeleteVersionedLoser(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assignments WHERE id = $1 AND version = $2")).
		WithArgs("asg-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteVersioned(context.Background(), nil, "asg-1", 1)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryBulkCreateWithTxAborts(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	tx, err := repo.BeginTx(context.Background())
	require.NoError(t, err)

	batch := []models.Assignment{
		{PersonID: "p-1", TemplateID: "tpl-1", BlockID: "blk-1", SlotDate: time.Now(), SlotPeriod: models.SlotPeriodAM, Role: models.AssignmentRolePrimary},
		{PersonID: "p-2", TemplateID: "tpl-1", BlockID: "blk-1", SlotDate: time.Now(), SlotPeriod: models.SlotPeriodPM, Role: models.AssignmentRolePrimary},
	}
	err = repo.BulkCreateWithTx(context.Background(), tx, batch)
	require.Error(t, err)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryHasPrimaryInSlot(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM assignments WHERE person_id = $1 AND slot_date = $2 AND slot_period = $3 AND role = $4")).
		WithArgs("p-1", sqlmock.AnyArg(), string(models.SlotPeriodAM), string(models.AssignmentRolePrimary)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	slot := models.SlotRef{Date: time.Date(2026, time.July, 6, 0, 0, 0, 0, time.UTC), Period: models.SlotPeriodAM}
	taken, err := repo.HasPrimaryInSlot(context.Background(), "p-1", slot, "")
	require.NoError(t, err)
	assert.True(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}
