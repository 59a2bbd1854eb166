// Package refresh synchronizes a target dataset from a source dataset.
//
// A refresh walks a fixed sequence of stages and stops at the first fatal one:
//
//	REQUEST -> VALIDATE_SOURCE -> VALIDATE_TARGET -> SCHEMA_CHECK
//	        -> TRUNCATE_FLOW | COMPARE_FLOW -> ROW_COUNT_VERIFY -> REPORT
//
// # Methods
//
//   - TRUNCATE: every target row is removed and the source copied back in.
//     Versioned targets are refused.
//   - COMPARE: a changeset keyed on the request's identifier field is built by
//     the reconcile package and applied to the target.
//
// Remote targets need portal credentials, either inline or through a named
// profile in the jobs file. Tokens are cached per portal and username.
//
// # Report
//
// Once the flow finished, source and target row counts are compared. A
// mismatch does not roll back the applied edits; it is reported with
// Result.Success set to false.
//
// # Routes
//
//	POST /refresh             run an ad hoc refresh from a JSON body
//	POST /schema              compare source and target schemas
//	GET  /jobs                list configured jobs and profile names
//	POST /jobs/:name/run      run a configured job
package refresh
