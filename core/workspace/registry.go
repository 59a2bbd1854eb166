package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"geo-refresh/core/dataset"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RegistryTable is the catalog table holding dataset metadata a plain
// relational table cannot express.
const RegistryTable = "geo_datasets"

// DatasetInfo is one registry row. Datasets without a row are plain tables:
// not versioned, no geometry unless a "shape" column exists, OID taken from the
// integer primary key.
type DatasetInfo struct {
	// Name is the table the metadata applies to.
	Name string `gorm:"column:dataset_name;primaryKey;size:128"`
	// OIDField is the native row identity column.
	OIDField string `gorm:"column:oid_field;size:128"`
	// GeometryField is the WKB geometry column, empty for non-spatial tables.
	GeometryField string `gorm:"column:geometry_field;size:128"`
	// GeometryType is the declared shape type, e.g. esriGeometryPolygon.
	GeometryType string `gorm:"column:geometry_type;size:64"`
	// SpatialReference is raw spatial reference JSON.
	SpatialReference string `gorm:"column:spatial_reference;type:text"`
	// IsVersioned requires edits inside an edit session.
	IsVersioned bool `gorm:"column:is_versioned"`

	CreatorField   string `gorm:"column:creator_field;size:128"`
	CreatedAtField string `gorm:"column:created_at_field;size:128"`
	EditorField    string `gorm:"column:editor_field;size:128"`
	EditedAtField  string `gorm:"column:edited_at_field;size:128"`
	LengthField    string `gorm:"column:length_field;size:128"`
	AreaField      string `gorm:"column:area_field;size:128"`

	// FieldTypes is a JSON object of column name to field type for columns whose
	// storage type is ambiguous (GUID, GlobalID, Single).
	FieldTypes string `gorm:"column:field_types;type:text"`
}

// TableName overrides the gorm table name.
func (DatasetInfo) TableName() string {
	return RegistryTable
}

// TypeOverrides decodes FieldTypes.
func (i *DatasetInfo) TypeOverrides() (map[string]dataset.FieldType, error) {
	out := make(map[string]dataset.FieldType)
	if strings.TrimSpace(i.FieldTypes) == "" {
		return out, nil
	}
	raw := make(map[string]dataset.FieldType)
	if err := json.Unmarshal([]byte(i.FieldTypes), &raw); err != nil {
		return nil, fmt.Errorf("invalid field_types for %s: %w", i.Name, err)
	}
	for k, v := range raw {
		out[strings.ToLower(k)] = v
	}
	return out, nil
}

// SetTypeOverrides encodes overrides into FieldTypes.
func (i *DatasetInfo) SetTypeOverrides(types map[string]dataset.FieldType) error {
	if len(types) == 0 {
		i.FieldTypes = ""
		return nil
	}
	data, err := json.Marshal(types)
	if err != nil {
		return err
	}
	i.FieldTypes = string(data)
	return nil
}

// loadInfo returns the registry row for table, or nil when the dataset is not
// registered or the registry does not exist.
func loadInfo(ctx context.Context, db *gorm.DB, table string) (*DatasetInfo, error) {
	if !db.Migrator().HasTable(RegistryTable) {
		return nil, nil
	}
	var rows []DatasetInfo
	err := db.WithContext(ctx).Where("LOWER(dataset_name) = ?", strings.ToLower(table)).Limit(1).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", RegistryTable, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// saveInfo creates the registry when needed and upserts info.
func saveInfo(ctx context.Context, db *gorm.DB, info *DatasetInfo) error {
	if err := db.WithContext(ctx).AutoMigrate(&DatasetInfo{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", RegistryTable, err)
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(info).Error
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", info.Name, err)
	}
	return nil
}
