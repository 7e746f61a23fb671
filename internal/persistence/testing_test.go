package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(DriverSQLite, ":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}
