package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	t.Run("Invalid Connection", func(t *testing.T) {
		dsn := MySQLDSN("root", "wrongpassword", "localhost", 9999, "gis", 1)

		// Connect should fail (timeout or refused)
		db, err := Connect(DriverMySQL, dsn, Config{TimeoutSeconds: 1})
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("Unsupported Driver", func(t *testing.T) {
		db, err := Connect("oracle", "whatever", Config{})
		assert.ErrorContains(t, err, "unsupported database driver")
		assert.Nil(t, db)
	})

	t.Run("SQLite Memory", func(t *testing.T) {
		db, err := Connect(DriverSQLite, ":memory:", Config{})
		require.NoError(t, err)
		assert.NoError(t, Close(db))
	})
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN("gis", "p@ss:word", "db.local", 3306, "city", 0)
	assert.Contains(t, dsn, "gis:p%40ss%3Aword@tcp(db.local:3306)/city?")
	assert.Contains(t, dsn, "timeout=30s")
	assert.Contains(t, dsn, "parseTime=True")
}
