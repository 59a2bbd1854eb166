package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestGetTableColumns(t *testing.T) {
	t.Run("SQLite", func(t *testing.T) {
		db, err := Connect(DriverSQLite, ":memory:", Config{})
		require.NoError(t, err)
		defer Close(db)

		err = db.Exec("CREATE TABLE parcels (objectid INTEGER PRIMARY KEY, Name TEXT NOT NULL, area REAL)").Error
		require.NoError(t, err)

		columns, err := GetTableColumns(db, "parcels")
		require.NoError(t, err)
		require.Len(t, columns, 3)

		assert.Equal(t, "objectid", columns[0].Field)
		assert.True(t, columns[0].IsPrimaryKey())
		assert.Equal(t, "Name", columns[1].Field)
		assert.Equal(t, "text", columns[1].Type)
		assert.Equal(t, "NO", columns[1].Null)
		assert.Equal(t, "real", columns[2].Type)
		assert.False(t, columns[2].IsPrimaryKey())
	})

	t.Run("MySQL", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()

		db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{})
		require.NoError(t, err)

		rows := sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
			AddRow("OBJECTID", "INT(11)", "NO", "PRI", nil, "auto_increment").
			AddRow("name", "VARCHAR(255)", "YES", "", nil, "")
		mock.ExpectQuery("SHOW COLUMNS FROM `parcels`").WillReturnRows(rows)

		columns, err := GetTableColumns(db, "parcels")
		require.NoError(t, err)
		require.Len(t, columns, 2)
		assert.Equal(t, "OBJECTID", columns[0].Field)
		assert.Equal(t, "int(11)", columns[0].Type)
		assert.True(t, columns[0].IsPrimaryKey())
		assert.Equal(t, "varchar(255)", columns[1].Type)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
