package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"geo-refresh/core/database"
	"geo-refresh/core/dataset"
	"geo-refresh/core/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by operations on a table that does not exist.
var ErrNotFound = errors.New("table not found")

// scanPageSize is the number of rows read per keyset page.
const scanPageSize = 1000

// Table is a local dataset stored in a relational workspace.
// It implements dataset.Editable.
type Table struct {
	loc  Location
	db   *gorm.DB
	desc *dataset.Description
}

var _ dataset.Editable = (*Table)(nil)

// Open connects to the workspace of path. A missing SQLite file is not an
// error: the returned table reports Exists false.
func Open(path string, cfg database.Config) (*Table, error) {
	loc, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	t := &Table{loc: loc}
	if loc.Driver == database.DriverSQLite {
		if _, err := os.Stat(loc.File); err != nil {
			if os.IsNotExist(err) {
				return t, nil
			}
			return nil, fmt.Errorf("failed to stat %s: %w", loc.File, err)
		}
	}

	db, err := database.Connect(loc.Driver, loc.DSN(cfg.TimeoutSeconds), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace of %s: %w", loc, err)
	}
	t.db = db
	return t, nil
}

// NewTable wraps an existing connection. Used when the caller owns the pool.
func NewTable(db *gorm.DB, loc Location) *Table {
	return &Table{loc: loc, db: db}
}

// Close releases the workspace connection.
func (t *Table) Close() error {
	if t.db == nil {
		return nil
	}
	err := database.Close(t.db)
	t.db = nil
	return err
}

// Path returns the path the table was opened from.
func (t *Table) Path() string {
	return t.loc.Path
}

// Location returns the parsed path.
func (t *Table) Location() Location {
	return t.loc
}

// Exists reports whether the table exists in its workspace.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	if t.db == nil {
		return false, nil
	}
	return t.db.WithContext(ctx).Migrator().HasTable(t.loc.Table), nil
}

func (t *Table) conn(ctx context.Context) (*gorm.DB, error) {
	if t.db == nil {
		return nil, fmt.Errorf("%s: %w", t.loc, ErrNotFound)
	}
	return t.db.WithContext(ctx), nil
}

// Describe reads the table schema and registry metadata. The result is cached.
func (t *Table) Describe(ctx context.Context) (*dataset.Description, error) {
	if t.desc != nil {
		return t.desc, nil
	}
	db, err := t.conn(ctx)
	if err != nil {
		return nil, err
	}
	if ok, _ := t.Exists(ctx); !ok {
		return nil, fmt.Errorf("%s: %w", t.loc, ErrNotFound)
	}

	columns, err := database.GetTableColumns(db, t.loc.Table)
	if err != nil {
		return nil, err
	}
	info, err := loadInfo(ctx, db, t.loc.Table)
	if err != nil {
		return nil, err
	}

	desc := &dataset.Description{
		Name:      t.loc.Table,
		Workspace: t.loc.Workspace,
	}

	overrides := map[string]dataset.FieldType{}
	if info != nil {
		if overrides, err = info.TypeOverrides(); err != nil {
			return nil, err
		}
		desc.OIDField = columnName(columns, info.OIDField)
		desc.GeometryField = columnName(columns, info.GeometryField)
		desc.GeometryType = info.GeometryType
		desc.IsVersioned = info.IsVersioned
		desc.CreatorField = info.CreatorField
		desc.CreatedAtField = info.CreatedAtField
		desc.EditorField = info.EditorField
		desc.EditedAtField = info.EditedAtField
		desc.LengthField = info.LengthField
		desc.AreaField = info.AreaField
		if strings.TrimSpace(info.SpatialReference) != "" {
			desc.SpatialReference = json.RawMessage(info.SpatialReference)
		}
	}
	if desc.OIDField == "" {
		desc.OIDField = defaultOIDField(columns)
	}
	if desc.GeometryField == "" && info == nil {
		desc.GeometryField = columnName(columns, "shape")
	}
	desc.HasGeometry = desc.GeometryField != ""

	for _, col := range columns {
		f := dataset.Field{Name: col.Field}
		switch {
		case strings.EqualFold(col.Field, desc.OIDField):
			f.Type = dataset.FieldOID
		case strings.EqualFold(col.Field, desc.GeometryField):
			f.Type = dataset.FieldGeometry
		default:
			if o, ok := overrides[strings.ToLower(col.Field)]; ok {
				f.Type = o
			} else {
				f.Type = fieldTypeOf(col.Type)
			}
		}
		desc.Fields = append(desc.Fields, f)
	}

	t.desc = desc
	return desc, nil
}

// Count returns the number of rows.
func (t *Table) Count(ctx context.Context) (int64, error) {
	db, err := t.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Table(t.loc.Table).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.loc, err)
	}
	return n, nil
}

// Scan reads rows in OID order, one page at a time. fn is called after each
// page's cursor is closed, so it may use the same workspace.
func (t *Table) Scan(ctx context.Context, fields []string, fn func(dataset.Record) error) error {
	db, err := t.conn(ctx)
	if err != nil {
		return err
	}
	desc, err := t.Describe(ctx)
	if err != nil {
		return err
	}

	columns := make([]string, len(fields))
	types := make([]dataset.FieldType, len(fields))
	for i, name := range fields {
		col, ft, err := resolveField(desc, name)
		if err != nil {
			return fmt.Errorf("%s: %w", t.loc, err)
		}
		columns[i], types[i] = col, ft
	}

	oid := desc.OIDField
	selected := append([]string{}, columns...)
	oidIdx := indexOf(columns, oid)
	if oid != "" && oidIdx < 0 {
		selected = append(selected, oid)
		oidIdx = len(selected) - 1
	}

	var last int64
	for first := true; ; first = false {
		q := db.Table(t.loc.Table).Clauses(selectColumns(selected))
		if oid != "" {
			if !first {
				q = q.Where(clause.Gt{Column: clause.Column{Name: oid}, Value: last})
			}
			q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: oid}}).Limit(scanPageSize)
		}

		page, lastOID, err := readPage(q, len(selected), oidIdx)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", t.loc, err)
		}

		for _, values := range page {
			rec := make(dataset.Record, len(fields))
			for i, name := range fields {
				v, err := readValue(values[i], types[i])
				if err != nil {
					return fmt.Errorf("failed to read %s.%s: %w", t.loc.Table, name, err)
				}
				rec[name] = v
			}
			if err := fn(rec); err != nil {
				return err
			}
		}

		if oid == "" || len(page) < scanPageSize {
			return nil
		}
		last = lastOID
	}
}

func readPage(q *gorm.DB, width, oidIdx int) ([][]any, int64, error) {
	rows, err := q.Rows()
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		page [][]any
		last int64
	)
	for rows.Next() {
		values := make([]any, width)
		ptrs := make([]any, width)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, err
		}
		if oidIdx >= 0 {
			if v, ok := utils.ToInt64(values[oidIdx]); ok {
				last = v
			}
		}
		page = append(page, values)
	}
	return page, last, rows.Err()
}

// resolveField maps a requested field to its column and type. ShapeToken maps
// to the geometry column.
func resolveField(desc *dataset.Description, name string) (string, dataset.FieldType, error) {
	if name == dataset.ShapeToken {
		if !desc.HasGeometry {
			return "", "", fmt.Errorf("dataset %s has no geometry", desc.Name)
		}
		return desc.GeometryField, dataset.FieldGeometry, nil
	}
	f, ok := desc.Field(name)
	if !ok {
		return "", "", fmt.Errorf("field %s not found in %s", name, desc.Name)
	}
	return f.Name, f.Type, nil
}

// selectColumns builds a quoted select list.
func selectColumns(names []string) clause.Select {
	cols := make([]clause.Column, len(names))
	for i, n := range names {
		cols[i] = clause.Column{Name: n}
	}
	return clause.Select{Columns: cols}
}

func columnName(columns []database.ColumnInfo, name string) string {
	if name == "" {
		return ""
	}
	for _, c := range columns {
		if strings.EqualFold(c.Field, name) {
			return c.Field
		}
	}
	return ""
}

func defaultOIDField(columns []database.ColumnInfo) string {
	var pks []database.ColumnInfo
	for _, c := range columns {
		if c.IsPrimaryKey() {
			pks = append(pks, c)
		}
	}
	if len(pks) == 1 && fieldTypeOf(pks[0].Type) != dataset.FieldString {
		return pks[0].Field
	}
	return columnName(columns, "objectid")
}

func indexOf(list []string, s string) int {
	if s == "" {
		return -1
	}
	for i, v := range list {
		if strings.EqualFold(v, s) {
			return i
		}
	}
	return -1
}
