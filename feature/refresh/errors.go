package refresh

import (
	"errors"
	"fmt"

	"geo-refresh/core/reconcile"
)

// Fatal preconditions. A refresh failing one of these never writes to the target.
var (
	ErrSourceNotFound    = errors.New("source does not exist")
	ErrTargetNotFound    = errors.New("target does not exist")
	ErrCredentials       = errors.New("insufficient login parameters")
	ErrAuthentication    = errors.New("login to target portal was unsuccessful")
	ErrVersionedTruncate = errors.New("versioned target datasets cannot be truncated, use the COMPARE method")
	ErrSchemaMismatch    = errors.New("source fields not matching target")

	ErrMissingIDField      = reconcile.ErrMissingIDField
	ErrDuplicateIdentifier = reconcile.ErrDuplicateIdentifier
)

// Stage names the state a refresh was in.
type Stage string

const (
	StageRequest        Stage = "REQUEST"
	StageValidateSource Stage = "VALIDATE_SOURCE"
	StageValidateTarget Stage = "VALIDATE_TARGET"
	StageSchemaCheck    Stage = "SCHEMA_CHECK"
	StageTruncate       Stage = "TRUNCATE_FLOW"
	StageCompare        Stage = "COMPARE_FLOW"
	StageRowCount       Stage = "ROW_COUNT_VERIFY"
)

// AbortError is returned when a refresh stops before reaching its report.
type AbortError struct {
	Stage Stage
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("refresh aborted during %s: %v", e.Stage, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

func abort(stage Stage, err error) error {
	return &AbortError{Stage: stage, Err: err}
}
