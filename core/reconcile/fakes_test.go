package reconcile

import (
	"context"
	"sync"

	"geo-refresh/core/dataset"
)

// memTable is an in-memory dataset. Rows are keyed by field name with geometry
// stored under dataset.ShapeToken.
type memTable struct {
	path string
	desc *dataset.Description
	rows []dataset.Record
}

func (m *memTable) Path() string { return m.path }

func (m *memTable) Exists(context.Context) (bool, error) { return true, nil }

func (m *memTable) Describe(context.Context) (*dataset.Description, error) { return m.desc, nil }

func (m *memTable) Count(context.Context) (int64, error) { return int64(len(m.rows)), nil }

func (m *memTable) Scan(_ context.Context, fields []string, fn func(dataset.Record) error) error {
	for _, row := range m.rows {
		out := make(dataset.Record, len(fields))
		for _, f := range fields {
			out[f] = row[f]
		}
		if err := fn(out); err != nil {
			return err
		}
	}
	return nil
}

// memLayer is a remote layer double that records every applyEdits call.
type memLayer struct {
	memTable

	mu       sync.Mutex
	requests []dataset.EditRequest
	respond  func(call int, req dataset.EditRequest) (*dataset.EditResult, error)
}

func (l *memLayer) QueryIDs(context.Context, string) (string, []int64, error) {
	var ids []int64
	for _, r := range l.rows {
		if oid, ok := r[l.desc.OIDField].(int64); ok {
			ids = append(ids, oid)
		}
	}
	return l.desc.OIDField, ids, nil
}

func (l *memLayer) ApplyEdits(_ context.Context, req dataset.EditRequest) (*dataset.EditResult, error) {
	l.mu.Lock()
	call := len(l.requests)
	l.requests = append(l.requests, req)
	l.mu.Unlock()

	if l.respond != nil {
		return l.respond(call, req)
	}
	return succeed(req), nil
}

func succeed(req dataset.EditRequest) *dataset.EditResult {
	res := &dataset.EditResult{}
	for i := range req.Adds {
		res.AddResults = append(res.AddResults, dataset.EditOutcome{ObjectID: int64(1000 + i), Success: true})
	}
	for range req.Updates {
		res.UpdateResults = append(res.UpdateResults, dataset.EditOutcome{Success: true})
	}
	for _, id := range req.Deletes {
		res.DeleteResults = append(res.DeleteResults, dataset.EditOutcome{ObjectID: id, Success: true})
	}
	return res
}

func tableDesc(name string, geometry bool, fields ...dataset.Field) *dataset.Description {
	d := &dataset.Description{
		Name:      name,
		Fields:    append([]dataset.Field{{Name: "objectid", Type: dataset.FieldOID}}, fields...),
		OIDField:  "objectid",
		Workspace: dataset.WorkspaceFile,
	}
	if geometry {
		d.HasGeometry = true
		d.GeometryField = "shape"
		d.Fields = append(d.Fields, dataset.Field{Name: "shape", Type: dataset.FieldGeometry})
		d.SpatialReference = []byte(`{"wkid":4326}`)
	}
	return d
}
