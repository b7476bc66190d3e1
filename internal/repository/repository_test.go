package repository

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/codeduel/duel-backend/pkg/database"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		sqlDB.Close()
	})

	return database.Wrap(sqlDB), mock
}
