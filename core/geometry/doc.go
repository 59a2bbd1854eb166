// Package geometry converts between the Esri JSON geometry text exchanged with
// feature services, the orb geometry model, and the WKB form stored in local
// workspaces.
//
// Two comparison levels are offered. Canonical re-serializes a geometry with a
// fixed key order so most unchanged shapes compare equal as plain strings. When
// that cheap check fails, Equal compares the parsed shapes semantically: ring and
// path order, ring start point and traversal direction do not matter.
package geometry
