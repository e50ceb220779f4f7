package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"critical-alerts/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SlotRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewSlotRepository(db, logger)

	return db, mock, repo
}

func TestSlotRepository_Get_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	payload := `[{"id":"n-1","patientId":"P1"}]`
	rows := sqlmock.NewRows([]string{"payload"}).AddRow([]byte(payload))

	mock.ExpectQuery(`SELECT payload`).
		WithArgs("critical-notifications").
		WillReturnRows(rows)

	val, err := repo.Get(context.Background(), "critical-notifications")

	require.NoError(t, err)
	assert.Equal(t, payload, val)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepository_Get_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT payload`).
		WithArgs("critical-notifications").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "critical-notifications")

	assert.ErrorIs(t, err, store.ErrSlotMiss)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepository_Get_QueryError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT payload`).
		WithArgs("critical-notifications").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Get(context.Background(), "critical-notifications")

	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrSlotMiss)
	assert.Contains(t, err.Error(), "failed to query slot")
}

func TestSlotRepository_Set_Upserts(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO critical_notification_slots`).
		WithArgs("critical-notifications", "[]").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Set(context.Background(), "critical-notifications", "[]"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepository_Del(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM critical_notification_slots`).
		WithArgs("critical-notifications").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Del(context.Background(), "critical-notifications"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepository_EnsureSchema(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS critical_notification_slots`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepository_ServesAsStoreBackend(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT payload`).
		WithArgs("critical-notifications").
		WillReturnError(sql.ErrNoRows)

	s := store.NewStore(repo, "critical-notifications", zap.NewNop())
	require.NoError(t, s.Init(context.Background()))
	assert.Empty(t, s.List())
	require.NoError(t, mock.ExpectationsWereMet())
}
