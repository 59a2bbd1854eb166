package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Dataset is the read surface shared by local tables and remote layers.
type Dataset interface {
	// Path returns the path or URL the dataset was opened from.
	Path() string

	// Exists reports whether the dataset can be found.
	Exists(ctx context.Context) (bool, error)

	// Describe returns the dataset schema. Implementations cache the result for
	// the lifetime of the handle.
	Describe(ctx context.Context) (*Description, error)

	// Count returns the number of rows.
	Count(ctx context.Context) (int64, error)

	// Scan streams every row projected to fields. fields may include the OID field
	// and ShapeToken. Scanning stops at the first error returned by fn.
	Scan(ctx context.Context, fields []string, fn func(Record) error) error
}

// Editor mutates a local table inside (or outside) an edit session.
type Editor interface {
	// DeleteByOID removes the rows with the given native identities.
	DeleteByOID(ctx context.Context, oids []int64) (int64, error)

	// UpdateByOID overwrites the fields of rec on the row with the given identity.
	UpdateByOID(ctx context.Context, oid int64, rec Record) error

	// Insert adds rows, writing only fields in the given order.
	Insert(ctx context.Context, fields []string, recs []Record) error
}

// Editable is a local dataset that supports transactional edits and bulk operations.
type Editable interface {
	Dataset

	// Edit runs fn against an Editor. Versioned datasets get an edit session that
	// is saved only if fn returns nil; other datasets are edited directly.
	Edit(ctx context.Context, fn func(Editor) error) error

	// Truncate deletes every row.
	Truncate(ctx context.Context) error

	// Append bulk-copies every row of src, projected to fields.
	Append(ctx context.Context, src Dataset, fields []string) (int64, error)

	// Maintain compacts (file workspace) or analyzes (enterprise workspace) the
	// dataset and returns the action taken, or "" when nothing applies.
	Maintain(ctx context.Context) (string, error)
}

// Feature is a row in the remote edit protocol.
type Feature struct {
	Attributes map[string]any  `json:"attributes"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
}

// EditRequest is one applyEdits call. Usually only one slice is populated.
type EditRequest struct {
	Adds    []Feature
	Updates []Feature
	Deletes []int64
}

// Size returns the number of edits carried by the request.
func (r EditRequest) Size() int {
	return len(r.Adds) + len(r.Updates) + len(r.Deletes)
}

// EditError is a per-record rejection returned by a feature service.
type EditError struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

// EditOutcome is the result of a single add, update or delete.
type EditOutcome struct {
	ObjectID int64      `json:"objectId"`
	Success  bool       `json:"success"`
	Error    *EditError `json:"error,omitempty"`
}

func (o EditOutcome) String() string {
	if o.Error != nil {
		return fmt.Sprintf("objectId=%d success=%t code=%d %s", o.ObjectID, o.Success, o.Error.Code, o.Error.Description)
	}
	return fmt.Sprintf("objectId=%d success=%t", o.ObjectID, o.Success)
}

// EditResult collects the per-record outcomes of one applyEdits call.
type EditResult struct {
	AddResults    []EditOutcome `json:"addResults"`
	UpdateResults []EditOutcome `json:"updateResults"`
	DeleteResults []EditOutcome `json:"deleteResults"`
}

// Layer is a remote feature-service layer.
type Layer interface {
	Dataset

	// QueryIDs returns the layer's OID field and the identities matching where.
	QueryIDs(ctx context.Context, where string) (string, []int64, error)

	// ApplyEdits submits one batch of edits.
	ApplyEdits(ctx context.Context, req EditRequest) (*EditResult, error)
}

// Kind tells local and remote datasets apart.
type Kind int

const (
	KindLocal Kind = iota
	KindRemote
)

func (k Kind) String() string {
	if k == KindRemote {
		return "remote"
	}
	return "local"
}

// Classify returns the backend kind for a dataset path.
func Classify(path string) Kind {
	p := strings.ToLower(strings.TrimSpace(path))
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return KindRemote
	}
	return KindLocal
}

// IsRemote reports whether path points at a feature service.
func IsRemote(path string) bool {
	return Classify(path) == KindRemote
}
