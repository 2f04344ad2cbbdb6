package repository

import (
	"context"
	"database/sql"
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

func newConstraintRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestConstraintConfigRepositoryListEnabled(t *testing.T) {
	db, mock, cleanup := newConstraintRepoMock(t)
	defer cleanup()
	repo := NewConstraintConfigRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "kind", "hard", "priority", "enabled", "params", "created_at", "updated_at"}).
		AddRow("cfg-1", "availability", string(models.ConstraintAvailability), true, 90, true, types.JSONText(`{}`), time.Now(), time.Now()).
		AddRow("cfg-2", "workload-balance", string(models.ConstraintWorkloadBalance), false, 20, true, types.JSONText(`{}`), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM constraint_configs WHERE enabled = true ORDER BY hard DESC, priority DESC, name")).
		WillReturnRows(rows)

	configs, err := repo.ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.True(t, configs[0].Hard)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConstraintConfigRepositorySetEnabledNotFound(t *testing.T) {
	db, mock, cleanup := newConstraintRepoMock(t)
	defer cleanup()
	repo := NewConstraintConfigRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE constraint_configs SET enabled = $1, updated_at = $2 WHERE name = $3")).
		WithArgs(false, sqlmock.AnyArg(), "no-such-rule").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetEnabled(context.Background(), "no-such-rule", false)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConstraintConfigRepositoryExistsByName(t *testing.T) {
	db, mock, cleanup := newConstraintRepoMock(t)
	defer cleanup()
	repo := NewConstraintConfigRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM constraint_configs WHERE name = $1 AND id <> $2 LIMIT 1")).
		WithArgs("availability", "cfg-9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsByName(context.Background(), "availability", "cfg-9")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
