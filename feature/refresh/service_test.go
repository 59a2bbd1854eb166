package refresh

import (
	"context"
	"fmt"
	"testing"

	"geo-refresh/core/dataset"
	"geo-refresh/core/featureservice"
	"geo-refresh/core/reconcile"
	"geo-refresh/core/workspace"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostedURL = "https://gis.example.com/server/rest/services/Hosted/Owners/FeatureServer/0"

func TestRefresh_LocalCompare(t *testing.T) {
	source := sqliteTable(t, "source.sqlite", false, parcelFields,
		parcel("P-1", "Ada", 10), parcel("P-2", "Grace", 20), parcel("P-4", "Alan", 40))
	target := sqliteTable(t, "target.sqlite", false, parcelFields,
		parcel("P-1", "Ada", 10), parcel("P-2", "Linus", 20), parcel("P-3", "Ken", 30))

	fs := afero.NewMemMapFs()
	svc := newTestService(t, reconcile.Config{ChangesetDir: "/logs", Maintenance: true}, nil).WithFs(fs)

	req, err := NewRequest(source, target, MethodCompare, "parcel_id", Credentials{}, 0)
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, messageSuccess, res.Message)
	assert.Equal(t, int64(3), res.RecordCount)
	assert.Equal(t, int64(1), res.Adds)
	assert.Equal(t, int64(1), res.Updates)
	assert.Equal(t, int64(1), res.Deletes)
	assert.Equal(t, workspace.MaintenanceCompact, res.Maintenance)
	assert.NotEmpty(t, res.RunID)

	require.NotEmpty(t, res.Artifact)
	ok, err := afero.Exists(fs, res.Artifact)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, map[string]string{"P-1": "Ada", "P-2": "Grace", "P-4": "Alan"}, owners(t, target))

	again, err := svc.Refresh(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Zero(t, again.Adds+again.Updates+again.Deletes)
	assert.Empty(t, again.Artifact)
}

func TestRefresh_LocalTruncate(t *testing.T) {
	source := sqliteTable(t, "source.sqlite", false, parcelFields,
		parcel("P-1", "Ada", 10), parcel("P-2", "Grace", 20), parcel("P-4", "Alan", 40))
	target := sqliteTable(t, "target.sqlite", false, parcelFields,
		parcel("P-9", "Old", 5))

	svc := newTestService(t, reconcile.Config{}, nil)
	req, err := NewRequest(source, target, MethodTruncate, "", Credentials{}, 0)
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(3), res.Adds)
	assert.Equal(t, int64(3), res.RecordCount)
	assert.Empty(t, res.Maintenance)
	assert.Equal(t, map[string]string{"P-1": "Ada", "P-2": "Grace", "P-4": "Alan"}, owners(t, target))
}

func TestRefresh_VersionedTruncateAborts(t *testing.T) {
	source := sqliteTable(t, "source.sqlite", false, parcelFields, parcel("P-1", "Ada", 10))
	target := sqliteTable(t, "target.sqlite", true, parcelFields, parcel("P-2", "Linus", 20))

	svc := newTestService(t, reconcile.Config{}, nil)
	req, err := NewRequest(source, target, MethodTruncate, "", Credentials{}, 0)
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), req)
	require.ErrorIs(t, err, ErrVersionedTruncate)
	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, StageTruncate, ae.Stage)
	assert.False(t, res.Success)
	assert.Equal(t, map[string]string{"P-2": "Linus"}, owners(t, target))
}

func TestRefresh_SchemaMismatchAborts(t *testing.T) {
	withRegion := append(append([]dataset.Field{}, parcelFields...), dataset.Field{Name: "region_code", Type: dataset.FieldString})
	source := sqliteTable(t, "source.sqlite", false, withRegion, parcel("P-1", "Ada", 10))
	target := sqliteTable(t, "target.sqlite", false, parcelFields, parcel("P-2", "Linus", 20))

	svc := newTestService(t, reconcile.Config{}, nil)
	req, err := NewRequest(source, target, MethodCompare, "parcel_id", Credentials{}, 0)
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), req)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, StageSchemaCheck, ae.Stage)
	assert.Contains(t, res.Message, "Source: region_code/String not found in target.")
	assert.Equal(t, map[string]string{"P-2": "Linus"}, owners(t, target))
}

func TestRefresh_MissingDatasets(t *testing.T) {
	existing := sqliteTable(t, "existing.sqlite", false, parcelFields)
	missing := t.TempDir() + "/missing.sqlite/parcels"
	svc := newTestService(t, reconcile.Config{}, nil)

	tests := []struct {
		name   string
		source string
		target string
		want   error
		stage  Stage
	}{
		{"source", missing, existing, ErrSourceNotFound, StageValidateSource},
		{"target", existing, missing, ErrTargetNotFound, StageValidateTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(tt.source, tt.target, MethodTruncate, "", Credentials{}, 0)
			require.NoError(t, err)

			_, err = svc.Refresh(context.Background(), req)
			require.ErrorIs(t, err, tt.want)
			var ae *AbortError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.stage, ae.Stage)
		})
	}
}

func TestRefresh_InvalidRequestAborts(t *testing.T) {
	svc := newTestService(t, reconcile.Config{}, nil)

	_, err := svc.Refresh(context.Background(), Request{Source: "a.sqlite/t", Target: hostedURL, Method: MethodTruncate})
	require.ErrorIs(t, err, ErrCredentials)
	assert.True(t, IsAbort(err))
	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, StageRequest, ae.Stage)
}

func TestRefresh_RemoteTruncateLowercasesHostedFields(t *testing.T) {
	portal := portalServer(t, true)
	source := &fakeTable{path: "owners.sqlite/owners", desc: ownerDesc("owners", "OWNER"), rows: []dataset.Record{
		{"objectid": int64(1), "OWNER": "Ada"},
		{"objectid": int64(2), "OWNER": "Grace"},
	}}
	target := &fakeLayer{nextOID: 100, fakeTable: fakeTable{path: hostedURL, desc: ownerDesc("Owners", "OWNER"), rows: []dataset.Record{
		{"objectid": int64(7), "owner": "Old"},
		{"objectid": int64(8), "owner": "Older"},
		{"objectid": int64(9), "owner": "Oldest"},
	}}}

	svc := newTestService(t, reconcile.Config{}, nil).
		WithOpener(fakeOpener{source.path: source, target.path: target})
	creds := Credentials{PortalURL: portal.URL, Username: "publisher", Password: "secret"}
	req, err := NewRequest(source.path, target.path, MethodTruncate, "", creds, 0)
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(2), res.Adds)
	assert.Equal(t, int64(3), res.Deletes)
	assert.Equal(t, int64(2), res.RecordCount)

	var adds []dataset.Feature
	var deletes []int64
	for _, r := range target.requests {
		adds = append(adds, r.Adds...)
		deletes = append(deletes, r.Deletes...)
	}
	assert.ElementsMatch(t, []int64{7, 8, 9}, deletes)
	require.Len(t, adds, 2)
	assert.Equal(t, map[string]any{"owner": "Ada"}, adds[0].Attributes)
	assert.Equal(t, map[string]any{"owner": "Grace"}, adds[1].Attributes)
}

func TestRefresh_RemoteCountMismatchIsReported(t *testing.T) {
	portal := portalServer(t, false)
	source := &fakeTable{path: "parcels.sqlite/parcels", desc: ownerDesc("parcels", "parcel_id", "owner"), rows: []dataset.Record{
		{"objectid": int64(1), "parcel_id": "P-1", "owner": "Ada"},
		{"objectid": int64(2), "parcel_id": "P-2", "owner": "Grace"},
		{"objectid": int64(3), "parcel_id": "P-4", "owner": "Alan"},
	}}
	target := &fakeLayer{dropAdds: true, nextOID: 100, fakeTable: fakeTable{path: hostedURL, desc: ownerDesc("Parcels", "parcel_id", "owner"), rows: []dataset.Record{
		{"objectid": int64(11), "parcel_id": "P-1", "owner": "Ada"},
		{"objectid": int64(12), "parcel_id": "P-2", "owner": "Linus"},
		{"objectid": int64(13), "parcel_id": "P-3", "owner": "Ken"},
	}}}

	jobs := &Jobs{Profiles: map[string]featureservice.Credentials{
		"agol": {PortalURL: portal.URL, Username: "publisher", Password: "secret"},
	}}
	svc := newTestService(t, reconcile.Config{}, jobs).
		WithOpener(fakeOpener{source.path: source, target.path: target})
	req, err := NewRequest(source.path, target.path, MethodCompare, "parcel_id", Credentials{Profile: "agol"}, 0)
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, fmt.Sprintf(messageMismatch, 3, 2), res.Message)
	assert.Equal(t, int64(1), res.Adds)
	assert.Equal(t, int64(1), res.Updates)
	assert.Equal(t, int64(1), res.Deletes)
	require.NotNil(t, res.Apply)
	assert.Equal(t, "remote", res.Apply.Backend)

	// updates, then adds, then deletes
	require.Len(t, target.requests, 3)
	assert.Len(t, target.requests[0].Updates, 1)
	assert.Len(t, target.requests[1].Adds, 1)
	assert.Equal(t, []int64{13}, target.requests[2].Deletes)
	assert.Equal(t, "Grace", target.rows[1]["owner"])
}

func TestRefresh_RemoteAuthentication(t *testing.T) {
	portal := portalServer(t, false)
	target := &fakeLayer{fakeTable: fakeTable{path: hostedURL, desc: ownerDesc("Owners", "owner")}}
	source := &fakeTable{path: "owners.sqlite/owners", desc: ownerDesc("owners", "owner")}

	tests := []struct {
		name  string
		creds Credentials
		want  error
	}{
		{"wrong password", Credentials{PortalURL: portal.URL, Username: "publisher", Password: "nope"}, ErrAuthentication},
		{"incomplete login", Credentials{PortalURL: portal.URL, Username: "publisher"}, ErrCredentials},
		{"unknown profile", Credentials{Profile: "missing"}, ErrCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, reconcile.Config{}, nil).
				WithOpener(fakeOpener{source.path: source, target.path: target})
			req, err := NewRequest(source.path, target.path, MethodTruncate, "", tt.creds, 0)
			require.NoError(t, err)

			_, err = svc.Refresh(context.Background(), req)
			require.ErrorIs(t, err, tt.want)
			var ae *AbortError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, StageValidateTarget, ae.Stage)
			assert.Empty(t, target.requests)
		})
	}
}

func TestService_RunJob(t *testing.T) {
	source := sqliteTable(t, "source.sqlite", false, parcelFields, parcel("P-1", "Ada", 10))
	target := sqliteTable(t, "target.sqlite", false, parcelFields)

	jobs, err := ParseJobs([]byte(fmt.Sprintf(`
jobs:
  - name: parcels
    source: %s
    target: %s
    method: compare
    id_field: parcel_id
`, source, target)))
	require.NoError(t, err)

	svc := newTestService(t, reconcile.Config{}, jobs)
	res, err := svc.RunJob(context.Background(), "parcels")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, MethodCompare, res.Method)
	assert.Equal(t, int64(1), res.Adds)

	_, err = svc.RunJob(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestService_CheckSchema(t *testing.T) {
	withRegion := append(append([]dataset.Field{}, parcelFields...), dataset.Field{Name: "region_code", Type: dataset.FieldString})
	source := sqliteTable(t, "source.sqlite", false, withRegion)
	target := sqliteTable(t, "target.sqlite", false, parcelFields)
	svc := newTestService(t, reconcile.Config{}, nil)

	req, err := NewRequest(source, target, MethodTruncate, "", Credentials{}, 0)
	require.NoError(t, err)
	check, err := svc.CheckSchema(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, check.Match)
	assert.Equal(t, []dataset.Field{{Name: "region_code", Type: dataset.FieldString}}, check.Mismatched)

	req, err = NewRequest(target, source, MethodTruncate, "", Credentials{}, 0)
	require.NoError(t, err)
	check, err = svc.CheckSchema(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, check.Match)
}
