package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"geo-refresh/core/database"
	"geo-refresh/core/dataset"
	"geo-refresh/core/featureservice"
	"geo-refresh/core/reconcile"
	"geo-refresh/core/workspace"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTable is an in-memory dataset.
type fakeTable struct {
	path string
	desc *dataset.Description
	rows []dataset.Record
}

func (m *fakeTable) Path() string { return m.path }

func (m *fakeTable) Exists(context.Context) (bool, error) { return true, nil }

func (m *fakeTable) Describe(context.Context) (*dataset.Description, error) { return m.desc, nil }

func (m *fakeTable) Count(context.Context) (int64, error) { return int64(len(m.rows)), nil }

func (m *fakeTable) Scan(_ context.Context, fields []string, fn func(dataset.Record) error) error {
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

// fakeLayer is a feature layer that applies edits to its rows. With dropAdds
// set, adds are acknowledged but never stored.
type fakeLayer struct {
	fakeTable

	mu       sync.Mutex
	nextOID  int64
	dropAdds bool
	requests []dataset.EditRequest
}

func (l *fakeLayer) QueryIDs(context.Context, string) (string, []int64, error) {
	var ids []int64
	for _, r := range l.rows {
		ids = append(ids, r[l.desc.OIDField].(int64))
	}
	return l.desc.OIDField, ids, nil
}

func (l *fakeLayer) ApplyEdits(_ context.Context, req dataset.EditRequest) (*dataset.EditResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)

	oid := l.desc.OIDField
	res := &dataset.EditResult{}
	for _, f := range req.Updates {
		for _, row := range l.rows {
			if row[oid] == f.Attributes[oid] {
				for k, v := range f.Attributes {
					row[k] = v
				}
			}
		}
		res.UpdateResults = append(res.UpdateResults, dataset.EditOutcome{Success: true})
	}
	for _, f := range req.Adds {
		l.nextOID++
		if !l.dropAdds {
			row := dataset.Record{oid: l.nextOID}
			for k, v := range f.Attributes {
				row[k] = v
			}
			l.rows = append(l.rows, row)
		}
		res.AddResults = append(res.AddResults, dataset.EditOutcome{ObjectID: l.nextOID, Success: true})
	}
	for _, id := range req.Deletes {
		kept := l.rows[:0]
		for _, row := range l.rows {
			if row[oid] != id {
				kept = append(kept, row)
			}
		}
		l.rows = kept
		res.DeleteResults = append(res.DeleteResults, dataset.EditOutcome{ObjectID: id, Success: true})
	}
	return res, nil
}

// fakeOpener serves datasets by path. Unknown paths fail to open.
type fakeOpener map[string]dataset.Dataset

func (o fakeOpener) Open(_ context.Context, path string, _ *featureservice.Session) (dataset.Dataset, error) {
	if ds, ok := o[path]; ok {
		return ds, nil
	}
	return nil, errors.New("no such dataset")
}

func ownerDesc(name string, fields ...string) *dataset.Description {
	d := &dataset.Description{
		Name:      name,
		Fields:    []dataset.Field{{Name: "objectid", Type: dataset.FieldOID}},
		OIDField:  "objectid",
		Workspace: dataset.WorkspaceService,
	}
	for _, f := range fields {
		d.Fields = append(d.Fields, dataset.Field{Name: f, Type: dataset.FieldString})
	}
	return d
}

// portalServer answers token and portal description requests.
func portalServer(t *testing.T, isPortal bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/sharing/rest/generateToken"):
			if r.FormValue("password") != "secret" {
				fmt.Fprint(w, `{"error":{"code":400,"message":"Invalid username or password."}}`)
				return
			}
			fmt.Fprintf(w, `{"token":"tok-1","expires":%d}`, featureservice.ToEpochMillis(time.Now().Add(time.Hour)))
		case strings.HasSuffix(r.URL.Path, "/sharing/rest/portals/self"):
			fmt.Fprintf(w, `{"isPortal":%t}`, isPortal)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, cfg reconcile.Config, jobs *Jobs) *Service {
	t.Helper()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = reconcile.DefaultChunkSize
	}
	client := featureservice.NewClient(featureservice.Config{}, nil, zap.NewNop())
	return NewService(zap.NewNop(), cfg, database.Config{}, client, jobs)
}

var parcelFields = []dataset.Field{
	{Name: "objectid", Type: dataset.FieldOID},
	{Name: "parcel_id", Type: dataset.FieldString},
	{Name: "owner", Type: dataset.FieldString},
	{Name: "shape", Type: dataset.FieldGeometry},
}

func parcel(id, owner string, size float64) dataset.Record {
	return dataset.Record{
		"parcel_id":        id,
		"owner":            owner,
		dataset.ShapeToken: fmt.Sprintf(`{"rings":[[[0,0],[0,%[1]g],[%[1]g,%[1]g],[%[1]g,0],[0,0]]]}`, size),
	}
}

// sqliteTable creates a parcels table in a fresh SQLite file, seeds it and
// returns its path. The creating connection is closed before returning.
func sqliteTable(t *testing.T, file string, versioned bool, fields []dataset.Field, recs ...dataset.Record) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), file) + "/parcels"
	tbl, err := workspace.Create(ctx, path, workspace.TableSpec{
		Fields: fields,
		Info: workspace.DatasetInfo{
			GeometryType:     "esriGeometryPolygon",
			SpatialReference: `{"wkid":2056}`,
			IsVersioned:      versioned,
		},
	}, database.Config{})
	require.NoError(t, err)
	defer tbl.Close()

	if len(recs) > 0 {
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			switch f.Type {
			case dataset.FieldOID:
			case dataset.FieldGeometry:
				names = append(names, dataset.ShapeToken)
			default:
				names = append(names, f.Name)
			}
		}
		err = tbl.Edit(ctx, func(ed dataset.Editor) error {
			return ed.Insert(ctx, names, recs)
		})
		require.NoError(t, err)
	}
	return path
}

func owners(t *testing.T, path string) map[string]string {
	t.Helper()
	tbl, err := workspace.Open(path, database.Config{})
	require.NoError(t, err)
	defer tbl.Close()

	out := map[string]string{}
	err = tbl.Scan(context.Background(), []string{"parcel_id", "owner"}, func(r dataset.Record) error {
		out[fmt.Sprint(r["parcel_id"])] = fmt.Sprint(r["owner"])
		return nil
	})
	require.NoError(t, err)
	return out
}
