package reconcile

// Config holds defaults for refresh runs.
type Config struct {
	// ChunkSize is the number of edits sent per applyEdits call to a feature service.
	ChunkSize int `mapstructure:"chunk_size" default:"250"`
	// ChangesetDir is the folder receiving changeset artifacts. Empty disables them.
	ChangesetDir string `mapstructure:"changeset_dir" default:""`
	// ReaddDeletedMatches emits an add for a source row whose identifier matched a
	// target row that is itself scheduled for deletion.
	ReaddDeletedMatches bool `mapstructure:"readd_deleted_matches" default:"false"`
	// GeometryTolerance is the coordinate tolerance for geometry equality.
	GeometryTolerance float64 `mapstructure:"geometry_tolerance" default:"0.000000001"`
	// Maintenance compacts or analyzes local targets after a refresh.
	Maintenance bool `mapstructure:"maintenance" default:"true"`
	// JobsFile is the YAML file with job and credential profile definitions.
	JobsFile string `mapstructure:"jobs_file" default:"jobs.yaml"`
	// ArtifactRetentionDays is the default age for pruning changeset artifacts.
	ArtifactRetentionDays int `mapstructure:"artifact_retention_days" default:"7"`
}

// DefaultChunkSize is used when no chunk size is configured.
const DefaultChunkSize = 250
