package workspace

import (
	"context"
	"fmt"
	"strings"

	"geo-refresh/core/database"
	"geo-refresh/core/dataset"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// deleteBatchSize stays under the SQLite bound-parameter limit.
	deleteBatchSize = 500
	// insertBatchSize is the number of rows per INSERT statement.
	insertBatchSize = 100
)

// Maintenance actions reported by Maintain.
const (
	MaintenanceCompact = "compact"
	MaintenanceAnalyze = "analyze"
)

// editor applies edits through db, which is either the workspace connection
// or an open transaction.
type editor struct {
	db    *gorm.DB
	table string
	desc  *dataset.Description
}

// DeleteByOID deletes the rows with the given identities in batches.
func (e *editor) DeleteByOID(ctx context.Context, oids []int64) (int64, error) {
	var total int64
	for start := 0; start < len(oids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(oids))
		res := e.db.WithContext(ctx).Exec("DELETE FROM ? WHERE ? IN ?",
			clause.Table{Name: e.table}, clause.Column{Name: e.desc.OIDField}, oids[start:end])
		if res.Error != nil {
			return total, fmt.Errorf("failed to delete from %s: %w", e.table, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// UpdateByOID writes every field of rec except the OID onto the row.
func (e *editor) UpdateByOID(ctx context.Context, oid int64, rec dataset.Record) error {
	values, err := e.columns(rec, recordFields(rec))
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	err = e.db.WithContext(ctx).Table(e.table).
		Where(clause.Eq{Column: clause.Column{Name: e.desc.OIDField}, Value: oid}).
		Updates(values).Error
	if err != nil {
		return fmt.Errorf("failed to update %s %s=%d: %w", e.table, e.desc.OIDField, oid, err)
	}
	return nil
}

// Insert adds recs writing only fields, in insertBatchSize statements. The OID
// field is never written; the workspace assigns identities.
func (e *editor) Insert(ctx context.Context, fields []string, recs []dataset.Record) error {
	for start := 0; start < len(recs); start += insertBatchSize {
		end := min(start+insertBatchSize, len(recs))
		rows := make([]map[string]any, 0, end-start)
		for _, rec := range recs[start:end] {
			values, err := e.columns(rec, fields)
			if err != nil {
				return err
			}
			rows = append(rows, values)
		}
		if len(rows) == 0 || len(rows[0]) == 0 {
			continue
		}
		if err := e.db.WithContext(ctx).Table(e.table).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert into %s: %w", e.table, err)
		}
	}
	return nil
}

// columns maps record fields to storage columns, converting geometry to WKB.
func (e *editor) columns(rec dataset.Record, fields []string) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for _, name := range fields {
		if strings.EqualFold(name, e.desc.OIDField) || name == originIDColumn {
			continue
		}
		col, ft, err := resolveField(e.desc, name)
		if err != nil {
			return nil, err
		}
		v, err := writeValue(rec[name], ft)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s.%s: %w", e.table, name, err)
		}
		out[col] = v
	}
	return out, nil
}

// originIDColumn is the synthetic identity column carried by changesets.
const originIDColumn = "origin_objectid__"

func recordFields(rec dataset.Record) []string {
	fields := make([]string, 0, len(rec))
	for k := range rec {
		fields = append(fields, k)
	}
	return fields
}

// Edit runs fn inside a transaction for versioned tables and directly otherwise.
func (t *Table) Edit(ctx context.Context, fn func(dataset.Editor) error) error {
	db, err := t.conn(ctx)
	if err != nil {
		return err
	}
	desc, err := t.Describe(ctx)
	if err != nil {
		return err
	}

	if !desc.IsVersioned {
		return fn(&editor{db: db, table: t.loc.Table, desc: desc})
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return fn(&editor{db: tx, table: t.loc.Table, desc: desc})
	})
}

// Truncate deletes every row.
func (t *Table) Truncate(ctx context.Context) error {
	db, err := t.conn(ctx)
	if err != nil {
		return err
	}
	stmt := "TRUNCATE TABLE ?"
	if t.loc.Driver == database.DriverSQLite {
		stmt = "DELETE FROM ?"
	}
	if err := db.Exec(stmt, clause.Table{Name: t.loc.Table}).Error; err != nil {
		return fmt.Errorf("failed to truncate %s: %w", t.loc, err)
	}
	return nil
}

// Append copies every row of src projected to fields and returns the number
// of rows written.
func (t *Table) Append(ctx context.Context, src dataset.Dataset, fields []string) (int64, error) {
	db, err := t.conn(ctx)
	if err != nil {
		return 0, err
	}
	desc, err := t.Describe(ctx)
	if err != nil {
		return 0, err
	}
	ed := &editor{db: db, table: t.loc.Table, desc: desc}

	var (
		buf   []dataset.Record
		total int64
	)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if err := ed.Insert(ctx, fields, buf); err != nil {
			return err
		}
		total += int64(len(buf))
		buf = buf[:0]
		return nil
	}

	err = src.Scan(ctx, fields, func(rec dataset.Record) error {
		buf = append(buf, rec)
		if len(buf) >= insertBatchSize*5 {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("failed to append %s into %s: %w", src.Path(), t.loc, err)
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// Maintain compacts a file workspace or refreshes statistics of an enterprise
// table, returning the action taken.
func (t *Table) Maintain(ctx context.Context) (string, error) {
	db, err := t.conn(ctx)
	if err != nil {
		return "", err
	}

	switch t.loc.Driver {
	case database.DriverSQLite:
		if err := db.Exec("VACUUM").Error; err != nil {
			return "", fmt.Errorf("failed to compact %s: %w", t.loc.File, err)
		}
		return MaintenanceCompact, nil
	case database.DriverMySQL:
		if err := db.Exec("ANALYZE TABLE ?", clause.Table{Name: t.loc.Table}).Error; err != nil {
			return "", fmt.Errorf("failed to analyze %s: %w", t.loc, err)
		}
		return MaintenanceAnalyze, nil
	default:
		if err := db.Exec("ANALYZE ?", clause.Table{Name: t.loc.Table}).Error; err != nil {
			return "", fmt.Errorf("failed to analyze %s: %w", t.loc, err)
		}
		return MaintenanceAnalyze, nil
	}
}
