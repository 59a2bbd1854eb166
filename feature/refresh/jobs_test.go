package refresh

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobsYAML = `
profiles:
  agol:
    portal_url: https://www.arcgis.com
    username: publisher
    password: secret
  enterprise:
    portal_url: https://gis.example.com/portal
    username: admin
    password: hunter2
jobs:
  - name: parcels
    source: data/cadastre.sqlite/parcels
    target: https://services.arcgis.com/x/arcgis/rest/services/Parcels/FeatureServer/0
    method: COMPARE
    id_field: parcel_id
    profile: agol
  - name: roads
    source: data/roads.sqlite/roads
    target: postgres://gis:pw@db:5432/city/roads
    method: truncate
    chunk_size: 500
`

func TestLoadJobs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/jobs.yaml", []byte(jobsYAML), 0o644))

	jobs, err := LoadJobs(fs, "/etc/jobs.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"agol", "enterprise"}, jobs.ProfileNames())
	require.Len(t, jobs.Jobs, 2)

	job, err := jobs.Job("roads")
	require.NoError(t, err)
	req, err := job.Request()
	require.NoError(t, err)
	assert.Equal(t, MethodTruncate, req.Method)
	assert.Equal(t, 500, req.ChunkSize)

	job, err = jobs.Job("parcels")
	require.NoError(t, err)
	req, err = job.Request()
	require.NoError(t, err)
	assert.Equal(t, "agol", req.Credentials.Profile)
	assert.Equal(t, "parcel_id", req.IDField)

	_, err = jobs.Job("water")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestLoadJobs_MissingFile(t *testing.T) {
	jobs, err := LoadJobs(afero.NewMemMapFs(), "jobs.yaml")
	require.NoError(t, err)
	assert.Empty(t, jobs.Jobs)
	assert.Empty(t, jobs.ProfileNames())
}

func TestParseJobs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "jobs:\n  - name: a\n    sauce: x\n", "failed to parse jobs file"},
		{"missing name", "jobs:\n  - source: a.sqlite/t\n    target: b.sqlite/t\n    method: truncate\n", "name is required"},
		{"duplicate name", "jobs:\n  - {name: a, source: a.sqlite/t, target: b.sqlite/t, method: truncate}\n  - {name: a, source: a.sqlite/t, target: b.sqlite/t, method: truncate}\n", "defined twice"},
		{"unknown profile", "jobs:\n  - {name: a, source: a.sqlite/t, target: b.sqlite/t, method: truncate, profile: nope}\n", "unknown profile"},
		{"compare without id", "jobs:\n  - {name: a, source: a.sqlite/t, target: b.sqlite/t, method: compare}\n", "identifier"},
		{"incomplete profile", "profiles:\n  agol: {portal_url: https://www.arcgis.com}\n", "profile \"agol\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJobs([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseJobs_Empty(t *testing.T) {
	jobs, err := ParseJobs(nil)
	require.NoError(t, err)
	assert.Empty(t, jobs.Jobs)
}
