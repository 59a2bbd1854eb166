package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"geo-refresh/core/dataset"
	"geo-refresh/core/storage"
	"geo-refresh/core/storage/mocks"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	idField   = dataset.Field{Name: "id", Type: dataset.FieldInteger}
	nameField = dataset.Field{Name: "name", Type: dataset.FieldString}
	codeField = dataset.Field{Name: "code", Type: dataset.FieldString}
)

func TestCompare_Scenario(t *testing.T) {
	source := &memTable{path: "src", desc: tableDesc("src", false, idField, nameField), rows: []dataset.Record{
		{"objectid": int64(1), "id": int64(1), "name": "A"},
		{"objectid": int64(2), "id": int64(2), "name": "B"},
	}}
	target := &memTable{path: "dst", desc: tableDesc("dst", false, idField, nameField), rows: []dataset.Record{
		{"objectid": int64(10), "id": int64(1), "name": "A"},
		{"objectid": int64(11), "id": int64(3), "name": "C"},
	}}

	cs, err := NewBuilder(zap.NewNop(), Options{}).Compare(context.Background(), target, source, "id")
	require.NoError(t, err)

	assert.Equal(t, []string{"objectid", "id", "name"}, cs.Fields)
	assert.Equal(t, "objectid", cs.ObjectIDField)
	require.Len(t, cs.Adds, 1)
	assert.Equal(t, int64(2), cs.Adds[0]["id"])
	assert.Equal(t, "B", cs.Adds[0]["name"])
	assert.NotContains(t, cs.Adds[0], "objectid")
	assert.Empty(t, cs.Updates)
	require.Len(t, cs.Deletes, 1)
	assert.Equal(t, int64(11), cs.Deletes[11]["objectid"])
	assert.Equal(t, "C", cs.Deletes[11]["name"])
	assert.Empty(t, cs.Artifact)
}

func TestCompare_Updates(t *testing.T) {
	source := &memTable{path: "src", desc: tableDesc("src", false, idField, nameField), rows: []dataset.Record{
		{"id": int64(1), "name": "A2"},
		{"id": int64(2), "name": ""},
	}}
	target := &memTable{path: "dst", desc: tableDesc("dst", false, idField, nameField), rows: []dataset.Record{
		{"objectid": int64(10), "id": int64(1), "name": "A"},
		{"objectid": int64(11), "id": int64(2), "name": nil},
	}}

	cs, err := NewBuilder(zap.NewNop(), Options{}).Compare(context.Background(), target, source, "id")
	require.NoError(t, err)

	assert.Empty(t, cs.Adds)
	assert.Empty(t, cs.Deletes)
	require.Len(t, cs.Updates, 1)
	upd := cs.Updates[10]
	assert.Equal(t, int64(10), upd["objectid"])
	assert.Equal(t, "A2", upd["name"])
	assert.NotContains(t, upd, OriginIDField)
}

func TestCompare_InvalidTargetIdentifiersAreDeleted(t *testing.T) {
	source := &memTable{path: "src", desc: tableDesc("src", false, codeField), rows: []dataset.Record{
		{"code": "5"},
		{"code": "6"},
	}}
	target := &memTable{path: "dst", desc: tableDesc("dst", false, codeField), rows: []dataset.Record{
		{"objectid": int64(1), "code": ""},
		{"objectid": int64(2), "code": nil},
		{"objectid": int64(3), "code": "5"},
		{"objectid": int64(4), "code": "5"},
	}}

	cs, err := NewBuilder(zap.NewNop(), Options{}).Compare(context.Background(), target, source, "code")
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{1, 2, 4}, cs.DeleteIDs())
	assert.Empty(t, cs.Updates)
	require.Len(t, cs.Adds, 1)
	assert.Equal(t, "6", cs.Adds[0]["code"])
}

func TestCompare_DeletedMatch(t *testing.T) {
	source := &memTable{path: "src", desc: tableDesc("src", false, codeField, nameField), rows: []dataset.Record{
		{"code": nil, "name": "orphan"},
	}}
	target := &memTable{path: "dst", desc: tableDesc("dst", false, codeField, nameField), rows: []dataset.Record{
		{"objectid": int64(1), "code": nil, "name": "orphan"},
	}}

	core, logs := observer.New(zap.WarnLevel)
	cs, err := NewBuilder(zap.New(core), Options{}).Compare(context.Background(), target, source, "code")
	require.NoError(t, err)
	assert.Empty(t, cs.Adds)
	assert.Equal(t, []int64{1}, cs.DeleteIDs())
	assert.Equal(t, 1, logs.FilterMessage("source row matches a target row scheduled for deletion and is not added").Len())

	cs, err = NewBuilder(zap.NewNop(), Options{ReaddDeletedMatches: true}).Compare(context.Background(), target, source, "code")
	require.NoError(t, err)
	require.Len(t, cs.Adds, 1)
	assert.Equal(t, "orphan", cs.Adds[0]["name"])
}

func TestCompare_GeometryRingPermutation(t *testing.T) {
	source := &memTable{path: "src", desc: tableDesc("src", true, idField), rows: []dataset.Record{
		{"id": int64(1), dataset.ShapeToken: `{"rings":[[[10,10],[10,0],[0,0],[0,10],[10,10]]]}`},
		{"id": int64(2), dataset.ShapeToken: `{"x":1,"y":2}`},
	}}
	target := &memTable{path: "dst", desc: tableDesc("dst", true, idField), rows: []dataset.Record{
		{"objectid": int64(1), "id": int64(1), dataset.ShapeToken: `{"rings":[[[0,0],[10,0],[10,10],[0,10],[0,0]]],"spatialReference":{"wkid":4326}}`},
		{"objectid": int64(2), "id": int64(2), dataset.ShapeToken: `{"x":1,"y":3}`},
	}}

	cs, err := NewBuilder(zap.NewNop(), Options{}).Compare(context.Background(), target, source, "id")
	require.NoError(t, err)

	assert.Equal(t, []string{"objectid", dataset.ShapeToken, "id"}, cs.Fields)
	assert.Equal(t, []int64{2}, cs.UpdateIDs())
	assert.JSONEq(t, `{"wkid":4326}`, string(cs.SpatialReference))
}

func TestCompare_GeometryMultiRingOrder(t *testing.T) {
	const (
		small = `[[0,0],[0,10],[10,10],[10,0],[0,0]]`
		large = `[[20,20],[20,30],[30,30],[30,20],[20,20]]`
	)
	source := &memTable{path: "src", desc: tableDesc("src", true, idField), rows: []dataset.Record{
		{"id": int64(1), dataset.ShapeToken: `{"rings":[` + small + `,` + large + `]}`},
	}}
	target := &memTable{path: "dst", desc: tableDesc("dst", true, idField), rows: []dataset.Record{
		{"objectid": int64(7), "id": int64(1), dataset.ShapeToken: `{"rings":[` + large + `,` + small + `]}`},
	}}

	cs, err := NewBuilder(zap.NewNop(), Options{}).Compare(context.Background(), target, source, "id")
	require.NoError(t, err)

	assert.Empty(t, cs.UpdateIDs())
	assert.Empty(t, cs.Adds)
	assert.Empty(t, cs.Deletes)
}

func TestCompare_DuplicateSourceIdentifier(t *testing.T) {
	source := &memTable{path: "src", desc: tableDesc("src", false, idField), rows: []dataset.Record{
		{"id": int64(1)},
		{"id": int64(1)},
	}}
	target := &memTable{path: "dst", desc: tableDesc("dst", false, idField)}

	_, err := NewBuilder(zap.NewNop(), Options{}).Compare(context.Background(), target, source, "id")
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)
}

func TestCompare_MissingIdentifierField(t *testing.T) {
	source := &memTable{path: "src", desc: tableDesc("src", false, idField)}
	target := &memTable{path: "dst", desc: tableDesc("dst", false, idField)}

	_, err := NewBuilder(zap.NewNop(), Options{}).Compare(context.Background(), target, source, "parcel_id")
	assert.ErrorIs(t, err, ErrMissingIDField)
}

func TestCompare_SkipsSystemFields(t *testing.T) {
	desc := func(name string) *dataset.Description {
		d := tableDesc(name, false, idField, nameField,
			dataset.Field{Name: "last_edited_date", Type: dataset.FieldDate},
			dataset.Field{Name: "globalid", Type: dataset.FieldGlobalID})
		return d
	}
	source := &memTable{path: "src", desc: desc("src"), rows: []dataset.Record{
		{"id": int64(1), "name": "A", "last_edited_date": time.Now(), "globalid": "{B}"},
	}}
	target := &memTable{path: "dst", desc: desc("dst"), rows: []dataset.Record{
		{"objectid": int64(4), "id": int64(1), "name": "A", "last_edited_date": time.Unix(0, 0), "globalid": "{A}"},
	}}

	cs, err := NewBuilder(zap.NewNop(), Options{}).Compare(context.Background(), target, source, "id")
	require.NoError(t, err)
	assert.True(t, cs.Empty())
	assert.Equal(t, []string{"objectid", "id", "name"}, cs.Fields)
}

func TestCompare_WritesArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	opts := Options{ChangesetDir: "/logs", Fs: fs, Now: func() time.Time { return now }}

	source := &memTable{path: "src", desc: tableDesc("src", false, idField, nameField), rows: []dataset.Record{
		{"id": int64(1), "name": "A2"},
		{"id": int64(2), "name": "B"},
	}}
	target := &memTable{path: "city.sqlite/parcels", desc: tableDesc("parcels", false, idField, nameField), rows: []dataset.Record{
		{"objectid": int64(10), "id": int64(1), "name": "A"},
		{"objectid": int64(11), "id": int64(3), "name": "C"},
	}}

	cs, err := NewBuilder(zap.NewNop(), opts).Compare(context.Background(), target, source, "id")
	require.NoError(t, err)
	assert.Equal(t, "/logs/changesets/20240102_030405_citysqlite_parcels.xlsx", cs.Artifact)

	file, err := fs.Open(cs.Artifact)
	require.NoError(t, err)
	defer file.Close()
	book, err := excelize.OpenReader(file)
	require.NoError(t, err)
	rows, err := book.GetRows("Sheet1")
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"objectid", "id", "name", "change_type"}, rows[0])
	assert.Equal(t, "add", rows[1][3])
	assert.Equal(t, []string{"10", "1", "A2", "update"}, rows[2])
	assert.Equal(t, []string{"11", "3", "C", "delete"}, rows[3])
}

func TestCompare_ArchiveFailureKeepsChangeset(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "geo").Return(false, errors.New("minio down"))

	core, logs := observer.New(zap.WarnLevel)
	opts := Options{ChangesetDir: "/logs", Fs: fs, Archive: storage.NewArchive(client, "geo", "changesets/")}
	source := &memTable{path: "src", desc: tableDesc("src", false, idField, nameField), rows: []dataset.Record{
		{"objectid": int64(1), "id": int64(1), "name": "A"},
	}}
	target := &memTable{path: "dst", desc: tableDesc("dst", false, idField, nameField)}

	cs, err := NewBuilder(zap.New(core), opts).Compare(ctx, target, source, "id")
	require.NoError(t, err)
	require.Len(t, cs.Adds, 1)
	require.NotEmpty(t, cs.Artifact)

	exists, err := afero.Exists(fs, cs.Artifact)
	require.NoError(t, err)
	assert.True(t, exists)

	warnings := logs.FilterMessage("changeset archive upload failed").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "WARNING", warnings[0].ContextMap()["code"])
	assert.Contains(t, warnings[0].ContextMap()["error"], "minio down")
	client.AssertExpectations(t)
}

func TestCompare_NoArtifactForEmptyChangeset(t *testing.T) {
	fs := afero.NewMemMapFs()
	rows := []dataset.Record{{"objectid": int64(1), "id": int64(1), "name": "A"}}
	source := &memTable{path: "src", desc: tableDesc("src", false, idField, nameField), rows: rows}
	target := &memTable{path: "dst", desc: tableDesc("dst", false, idField, nameField), rows: rows}

	cs, err := NewBuilder(zap.NewNop(), Options{ChangesetDir: "/logs", Fs: fs}).Compare(context.Background(), target, source, "id")
	require.NoError(t, err)
	assert.True(t, cs.Empty())

	artifacts, err := ListArtifacts(fs, "/logs")
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestValuesEqual(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"blank and nil", "", nil, true},
		{"nil and value", nil, "x", false},
		{"int widths", int32(4), int64(4), true},
		{"int and float", int64(4), 4.0, true},
		{"floats", 1.5, 1.25, false},
		{"number and string", int64(4), "4", false},
		{"times", ts, ts.In(time.FixedZone("X", 3600)), true},
		{"strings", "a", "b", false},
		{"bytes", []byte("ab"), []byte("ab"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.a, tt.b))
		})
	}
}
