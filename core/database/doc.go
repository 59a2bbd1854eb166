// Package database handles database connections and schema inspection.
//
// It wraps GORM to open the three relational backends a workspace can live in:
// SQLite files (file workspaces), MySQL and PostgreSQL (enterprise workspaces).
// Pool limits and timeouts come from Config; the connection target itself is
// derived from the dataset path by the workspace package.
//
// # Schema Inspection
//
// GetTableColumns reports the columns of a table in declaration order using the
// native catalog of each dialect (PRAGMA table_info, SHOW COLUMNS or
// information_schema). The workspace package maps these to dataset field types.
//
// # Usage
//
//	db, err := database.Connect(database.DriverSQLite, "data/city.sqlite", cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer database.Close(db)
//
//	columns, err := database.GetTableColumns(db, "parcels")
package database
