package pairstore

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := &Postgres{
		db:               mock,
		name:             "Spacebar",
		pairLifetimeDays: 30,
		tables:           make(map[string]bool),
	}
	return store, mock
}

func TestPostgresCreateTable(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pair_1_2").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.CreateTable(context.Background(), "pair_1_2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddPair(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO pair_1_2").
		WithArgs("100", "200").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.AddPair(context.Background(), "pair_1_2", "100", "200"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetTarget(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT target_id FROM pair_1_2").
		WithArgs("100").
		WillReturnRows(pgxmock.NewRows([]string{"target_id"}).AddRow("200"))

	target, err := store.GetTarget(context.Background(), "pair_1_2", "100")
	require.NoError(t, err)
	assert.Equal(t, "200", target)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetTargetMissing(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT target_id FROM pair_1_2").
		WithArgs("100").
		WillReturnError(pgx.ErrNoRows)

	target, err := store.GetTarget(context.Background(), "pair_1_2", "100")
	require.NoError(t, err)
	assert.Equal(t, "", target)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetSource(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT source_id FROM pair_2_1").
		WithArgs("55").
		WillReturnRows(pgxmock.NewRows([]string{"source_id"}).AddRow("101"))

	source, err := store.GetSource(context.Background(), "pair_2_1", "55")
	require.NoError(t, err)
	assert.Equal(t, "101", source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeletePair(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec("DELETE FROM pair_1_2").
		WithArgs("100").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.DeletePair(context.Background(), "pair_1_2", "100"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCleanup(t *testing.T) {
	store, mock := newMockPostgres(t)
	store.tables["pair_1_2"] = true

	mock.ExpectExec("DELETE FROM pair_1_2").
		WithArgs(30).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, store.Cleanup(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRejectsBadPairID(t *testing.T) {
	store, _ := newMockPostgres(t)

	err := store.AddPair(context.Background(), "pair_x_y", "100", "200")
	assert.Error(t, err)
}
