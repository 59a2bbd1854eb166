package dataset

import (
	"encoding/json"
	"strings"
)

// ShapeToken is the pseudo field used to read and write geometry as Esri JSON text.
const ShapeToken = "SHAPE@JSON"

// FieldType enumerates the field types a dataset can declare.
type FieldType string

const (
	FieldOID          FieldType = "OID"
	FieldSmallInteger FieldType = "SmallInteger"
	FieldInteger      FieldType = "Integer"
	FieldBigInteger   FieldType = "BigInteger"
	FieldSingle       FieldType = "Single"
	FieldDouble       FieldType = "Double"
	FieldString       FieldType = "String"
	FieldDate         FieldType = "Date"
	FieldGUID         FieldType = "GUID"
	FieldGlobalID     FieldType = "GlobalID"
	FieldBlob         FieldType = "Blob"
	FieldRaster       FieldType = "Raster"
	FieldGeometry     FieldType = "Geometry"
)

// IsNumeric reports whether values of this type are numbers.
func (t FieldType) IsNumeric() bool {
	switch t {
	case FieldOID, FieldSmallInteger, FieldInteger, FieldBigInteger, FieldSingle, FieldDouble:
		return true
	}
	return false
}

// Field describes a single column of a dataset. It is immutable once read.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

func (f Field) String() string {
	return f.Name + "/" + string(f.Type)
}

// WorkspaceKind identifies the storage family that holds a dataset.
type WorkspaceKind string

const (
	// WorkspaceFile is a file-backed workspace (SQLite). Maintenance is a compact.
	WorkspaceFile WorkspaceKind = "file"
	// WorkspaceEnterprise is a server database workspace. Maintenance is an analyze.
	WorkspaceEnterprise WorkspaceKind = "enterprise"
	// WorkspaceService is a remote feature service. No maintenance is possible.
	WorkspaceService WorkspaceKind = "service"
)

// Description is the schema metadata of a dataset.
type Description struct {
	// Name is the dataset's base name (table or layer name).
	Name string `json:"name"`

	// Fields lists every field, including OID, geometry and system fields.
	Fields []Field `json:"fields"`

	// OIDField is the name of the native row identity field.
	OIDField string `json:"oid_field"`

	// HasGeometry is true for feature classes and feature layers.
	HasGeometry bool `json:"has_geometry"`

	// GeometryField is the storage column for geometry (local only).
	GeometryField string `json:"geometry_field,omitempty"`

	// GeometryType is the declared shape type (e.g. esriGeometryPolygon).
	GeometryType string `json:"geometry_type,omitempty"`

	// SpatialReference is the raw spatial reference JSON, nil for tables.
	SpatialReference json.RawMessage `json:"spatial_reference,omitempty"`

	// IsVersioned requires edits to run inside an edit session.
	IsVersioned bool `json:"is_versioned"`

	// Workspace identifies where the dataset lives.
	Workspace WorkspaceKind `json:"workspace"`

	// IsHosted is true for remote layers hosted by a portal.
	IsHosted bool `json:"is_hosted"`

	// Editor tracking and shape measure fields; empty when not configured.
	CreatorField   string `json:"creator_field,omitempty"`
	CreatedAtField string `json:"created_at_field,omitempty"`
	EditorField    string `json:"editor_field,omitempty"`
	EditedAtField  string `json:"edited_at_field,omitempty"`
	LengthField    string `json:"length_field,omitempty"`
	AreaField      string `json:"area_field,omitempty"`
}

// Field returns the field with the given name (case-insensitive).
func (d *Description) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// FieldTypes returns a lookup of field name to type.
func (d *Description) FieldTypes() map[string]FieldType {
	types := make(map[string]FieldType, len(d.Fields))
	for _, f := range d.Fields {
		types[f.Name] = f.Type
	}
	return types
}

// SystemFieldNames returns the lower-cased editor tracking and shape measure
// field names configured on this dataset.
func (d *Description) SystemFieldNames() []string {
	var names []string
	for _, n := range []string{d.CreatorField, d.CreatedAtField, d.EditorField, d.EditedAtField, d.LengthField, d.AreaField} {
		if n != "" {
			names = append(names, strings.ToLower(n))
		}
	}
	return names
}

// Record is a single row keyed by field name.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Values returns the record's values in the order of fields. Missing fields are nil.
func (r Record) Values(fields []string) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = r[f]
	}
	return out
}
