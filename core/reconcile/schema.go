package reconcile

import (
	"fmt"
	"strings"

	"geo-refresh/core/dataset"
)

// excludedTypes are never compared or copied field by field.
var excludedTypes = map[dataset.FieldType]struct{}{
	dataset.FieldBlob:     {},
	dataset.FieldGlobalID: {},
	dataset.FieldRaster:   {},
	dataset.FieldGeometry: {},
}

// reservedNames are system maintained columns, lower case.
var reservedNames = []string{
	"shape_starea__",
	"shape.starea()",
	"shape_stlength__",
	"shape.stlength()",
	"shape__length",
	"shape_length",
	"shape__area",
	"shape_area",
	"st_area(shape)",
	"st_length(shape)",
	"created_user",
	"created_date",
	"creationdate",
	"last_edited_user",
	"last_edited_date",
	"edited_date",
	"creator",
	"createdate",
	"editor",
	"editdate",
}

// SchemaCheck is the outcome of CompareSchemas.
type SchemaCheck struct {
	Match      bool            `json:"match"`
	Mismatched []dataset.Field `json:"mismatched"`
	Message    string          `json:"message"`
}

// omittedNames returns the lower-cased reserved names plus the editor tracking
// and shape measure fields declared by each description.
func omittedNames(descs ...*dataset.Description) map[string]struct{} {
	omit := make(map[string]struct{}, len(reservedNames)+12)
	for _, n := range reservedNames {
		omit[n] = struct{}{}
	}
	for _, d := range descs {
		if d == nil {
			continue
		}
		for _, n := range d.SystemFieldNames() {
			omit[n] = struct{}{}
		}
	}
	return omit
}

func excluded(f dataset.Field, omit map[string]struct{}) bool {
	if _, ok := excludedTypes[f.Type]; ok {
		return true
	}
	_, ok := omit[strings.ToLower(f.Name)]
	return ok
}

// schemaFields drops excluded fields and, for schema checks, the OID.
func schemaFields(d *dataset.Description, omit map[string]struct{}) []dataset.Field {
	var out []dataset.Field
	for _, f := range d.Fields {
		if excluded(f, omit) || f.Type == dataset.FieldOID || strings.EqualFold(f.Name, "objectid") {
			continue
		}
		out = append(out, f)
	}
	return out
}

// CompareSchemas reports every comparable source field that has no target field
// with the same name and type.
func CompareSchemas(source, target *dataset.Description) SchemaCheck {
	omit := omittedNames(source, target)
	targetFields := make(map[dataset.Field]struct{})
	for _, f := range schemaFields(target, omit) {
		targetFields[f] = struct{}{}
	}

	check := SchemaCheck{Match: true}
	var msg strings.Builder
	for _, f := range schemaFields(source, omit) {
		if _, ok := targetFields[f]; ok {
			continue
		}
		check.Match = false
		check.Mismatched = append(check.Mismatched, f)
		fmt.Fprintf(&msg, "Source: %s not found in target. ", f)
	}
	check.Message = strings.TrimSpace(msg.String())
	return check
}
