// Package utils provides common utility functions for geo-refresh.
// It includes helpers for type conversion, error message flattening and file
// name sanitizing that don't fit into domain-specific packages.
package utils
