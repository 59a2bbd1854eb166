package refresh

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"geo-refresh/core/featureservice"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrJobNotFound is returned for unknown job names.
var ErrJobNotFound = errors.New("job not found")

// Job is a named refresh defined in the jobs file.
type Job struct {
	Name      string `yaml:"name" json:"name"`
	Source    string `yaml:"source" json:"source"`
	Target    string `yaml:"target" json:"target"`
	Method    string `yaml:"method" json:"method"`
	IDField   string `yaml:"id_field" json:"id_field,omitempty"`
	Profile   string `yaml:"profile" json:"profile,omitempty"`
	ChunkSize int    `yaml:"chunk_size" json:"chunk_size,omitempty"`
}

// Request converts the job into a validated Request.
func (j Job) Request() (Request, error) {
	method, err := ParseMethod(j.Method)
	if err != nil {
		return Request{}, err
	}
	return NewRequest(j.Source, j.Target, method, j.IDField, Credentials{Profile: j.Profile}, j.ChunkSize)
}

// Jobs is the content of the jobs file:
//
//	profiles:
//	  agol:
//	    portal_url: https://www.arcgis.com
//	    username: publisher
//	    password: secret
//	jobs:
//	  - name: parcels
//	    source: data/cadastre.sqlite/parcels
//	    target: https://services.arcgis.com/x/arcgis/rest/services/Parcels/FeatureServer/0
//	    method: COMPARE
//	    id_field: parcel_id
//	    profile: agol
type Jobs struct {
	Profiles map[string]featureservice.Credentials `yaml:"profiles"`
	Jobs     []Job                                 `yaml:"jobs"`
}

// LoadJobs reads and validates the jobs file. A missing file yields an empty set.
func LoadJobs(fs afero.Fs, path string) (*Jobs, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Jobs{Profiles: map[string]featureservice.Credentials{}}, nil
		}
		return nil, fmt.Errorf("failed to read jobs file %s: %w", path, err)
	}
	return ParseJobs(data)
}

// ParseJobs decodes and validates jobs file content.
func ParseJobs(data []byte) (*Jobs, error) {
	var jobs Jobs
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&jobs); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse jobs file: %w", err)
	}
	if jobs.Profiles == nil {
		jobs.Profiles = map[string]featureservice.Credentials{}
	}
	if err := jobs.validate(); err != nil {
		return nil, err
	}
	return &jobs, nil
}

func (j *Jobs) validate() error {
	for name, p := range j.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
	}

	seen := make(map[string]struct{}, len(j.Jobs))
	for i, job := range j.Jobs {
		if job.Name == "" {
			return fmt.Errorf("job %d: name is required", i)
		}
		if _, dup := seen[job.Name]; dup {
			return fmt.Errorf("job %q is defined twice", job.Name)
		}
		seen[job.Name] = struct{}{}

		if job.Profile != "" {
			if _, ok := j.Profiles[job.Profile]; !ok {
				return fmt.Errorf("job %q: %w: unknown profile %q", job.Name, ErrCredentials, job.Profile)
			}
		}
		if _, err := job.Request(); err != nil {
			return fmt.Errorf("job %q: %w", job.Name, err)
		}
	}
	return nil
}

// Job returns the job with the given name.
func (j *Jobs) Job(name string) (Job, error) {
	for _, job := range j.Jobs {
		if job.Name == name {
			return job, nil
		}
	}
	return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
}

// ProfileNames returns the configured profile names, sorted.
func (j *Jobs) ProfileNames() []string {
	names := make([]string, 0, len(j.Profiles))
	for n := range j.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
