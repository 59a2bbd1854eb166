package workspace

import (
	"context"
	"fmt"
	"strings"

	"geo-refresh/core/database"
	"geo-refresh/core/dataset"

	"gorm.io/gorm/clause"
)

// TableSpec describes a table to create.
type TableSpec struct {
	// Fields lists the columns. Exactly one field of type OID is required.
	Fields []dataset.Field
	// Info carries registry metadata. Name, OIDField and GeometryField are
	// filled from Fields when empty.
	Info DatasetInfo
}

// Create creates the table named by path (and its SQLite file when missing),
// registers its metadata and returns it opened.
func Create(ctx context.Context, path string, spec TableSpec, cfg database.Config) (*Table, error) {
	loc, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(loc.Driver, loc.DSN(cfg.TimeoutSeconds), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace of %s: %w", loc, err)
	}
	t := NewTable(db, loc)

	info := spec.Info
	info.Name = loc.Table
	overrides := map[string]dataset.FieldType{}

	var (
		defs   []string
		values []any
	)
	for _, f := range spec.Fields {
		switch f.Type {
		case dataset.FieldOID:
			info.OIDField = f.Name
		case dataset.FieldGeometry:
			info.GeometryField = f.Name
		case dataset.FieldGUID, dataset.FieldGlobalID, dataset.FieldSingle:
			overrides[f.Name] = f.Type
		}
		defs = append(defs, "? "+columnDDL(loc.Driver, f.Type))
		values = append(values, clause.Column{Name: f.Name})
	}
	if info.OIDField == "" {
		_ = t.Close()
		return nil, fmt.Errorf("table %s needs an OID field", loc.Table)
	}
	if err := info.SetTypeOverrides(overrides); err != nil {
		_ = t.Close()
		return nil, err
	}

	stmt := "CREATE TABLE ? (" + strings.Join(defs, ", ") + ")"
	args := append([]any{clause.Table{Name: loc.Table}}, values...)
	if err := db.WithContext(ctx).Exec(stmt, args...).Error; err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("failed to create %s: %w", loc, err)
	}
	if err := saveInfo(ctx, db, &info); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

// Register writes registry metadata for an existing table.
func (t *Table) Register(ctx context.Context, info DatasetInfo) error {
	db, err := t.conn(ctx)
	if err != nil {
		return err
	}
	info.Name = t.loc.Table
	t.desc = nil
	return saveInfo(ctx, db, &info)
}
