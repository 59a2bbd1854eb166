package reconcile

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"geo-refresh/core/dataset"
	"geo-refresh/core/storage"

	"github.com/spf13/afero"
)

// OriginIDField is the synthetic column that carries the target's native row
// identity through a comparison. It is renamed to the target OID field before a
// ChangeSet is returned.
const OriginIDField = "origin_objectid__"

var (
	// ErrDuplicateIdentifier is returned when the identifier field repeats in the source.
	ErrDuplicateIdentifier = errors.New("duplicate identifier in source")

	// ErrMissingIDField is returned when the identifier field is not part of the target.
	ErrMissingIDField = errors.New("identifier field not found")

	// ErrArchive is returned by WriteArtifact when the local file was written
	// but the upload to the archive failed.
	ErrArchive = errors.New("failed to archive")
)

// ChangeType labels a row of a changeset artifact.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeSet is the difference between a source and a target dataset.
type ChangeSet struct {
	// IDField is the business identifier used to match rows.
	IDField string `json:"id_field"`

	// ObjectIDField is the target's native row identity field.
	ObjectIDField string `json:"object_id_field"`

	// Fields is the ordered field list. Fields[0] is ObjectIDField and the geometry
	// placeholder, when present, is dataset.ShapeToken.
	Fields []string `json:"fields"`

	// FieldTypes holds the target type of every entry in Fields.
	FieldTypes map[string]dataset.FieldType `json:"field_types"`

	// SpatialReference of the target, nil for tables.
	SpatialReference json.RawMessage `json:"spatial_reference,omitempty"`

	// Adds are source rows without a target counterpart. They carry no OID.
	Adds []dataset.Record `json:"adds"`

	// Updates are full source rows keyed by the target OID they replace.
	Updates map[int64]dataset.Record `json:"updates"`

	// Deletes are target rows keyed by their OID.
	Deletes map[int64]dataset.Record `json:"deletes"`

	// Artifact is the path of the written changeset spreadsheet, if any.
	Artifact string `json:"artifact,omitempty"`
}

// NewChangeSet returns an empty changeset for the given identity fields.
func NewChangeSet(idField, oidField string) *ChangeSet {
	return &ChangeSet{
		IDField:       idField,
		ObjectIDField: oidField,
		FieldTypes:    make(map[string]dataset.FieldType),
		Updates:       make(map[int64]dataset.Record),
		Deletes:       make(map[int64]dataset.Record),
	}
}

// Size returns the total number of edits.
func (cs *ChangeSet) Size() int {
	return len(cs.Adds) + len(cs.Updates) + len(cs.Deletes)
}

// Empty reports whether the changeset has no edits.
func (cs *ChangeSet) Empty() bool {
	return cs.Size() == 0
}

// DataFields returns Fields without the OID field.
func (cs *ChangeSet) DataFields() []string {
	out := make([]string, 0, len(cs.Fields))
	for _, f := range cs.Fields {
		if f != cs.ObjectIDField && f != OriginIDField {
			out = append(out, f)
		}
	}
	return out
}

// UpdateIDs returns the OIDs of Updates in ascending order.
func (cs *ChangeSet) UpdateIDs() []int64 {
	return sortedKeys(cs.Updates)
}

// DeleteIDs returns the OIDs of Deletes in ascending order.
func (cs *ChangeSet) DeleteIDs() []int64 {
	return sortedKeys(cs.Deletes)
}

func sortedKeys(m map[int64]dataset.Record) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Options tune change detection and the changeset artifact.
type Options struct {
	// ChangesetDir enables artifacts under <ChangesetDir>/changesets.
	ChangesetDir string

	// ReaddDeletedMatches emits an add for a source row whose only target match
	// is scheduled for deletion. When false the row is dropped with a warning.
	ReaddDeletedMatches bool

	// GeometryTolerance is passed to the semantic geometry comparison.
	GeometryTolerance float64

	// Fs is the filesystem for artifacts. Defaults to the OS filesystem.
	Fs afero.Fs

	// Archive, when set, receives a copy of every artifact.
	Archive *storage.Archive

	// Now is the artifact clock. Defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig builds Options from the refresh configuration.
func OptionsFromConfig(cfg Config) Options {
	return Options{
		ChangesetDir:        cfg.ChangesetDir,
		ReaddDeletedMatches: cfg.ReaddDeletedMatches,
		GeometryTolerance:   cfg.GeometryTolerance,
	}
}

func (o Options) fs() afero.Fs {
	if o.Fs == nil {
		return afero.NewOsFs()
	}
	return o.Fs
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}
