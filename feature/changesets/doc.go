// Package changesets exposes the spreadsheets written by COMPARE refreshes.
//
// Changesets live in the changesets folder below the configured changeset
// directory and, when object storage is enabled, in the archive bucket.
//
// # Routes
//
//	GET    /changesets           list local and archived changesets
//	GET    /changesets/:name     download one changeset
//	DELETE /changesets?days=N    remove changesets older than N days
package changesets
