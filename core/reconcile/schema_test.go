package reconcile

import (
	"testing"

	"geo-refresh/core/dataset"

	"github.com/stretchr/testify/assert"
)

func TestCompareSchemas(t *testing.T) {
	base := func() *dataset.Description {
		return tableDesc("parcels", true,
			dataset.Field{Name: "parcel_id", Type: dataset.FieldString},
			dataset.Field{Name: "area_m2", Type: dataset.FieldDouble},
			dataset.Field{Name: "Shape__Area", Type: dataset.FieldDouble},
			dataset.Field{Name: "GlobalID", Type: dataset.FieldGlobalID},
		)
	}

	t.Run("match ignores system fields", func(t *testing.T) {
		source := base()
		source.Fields = append(source.Fields,
			dataset.Field{Name: "created_user", Type: dataset.FieldString},
			dataset.Field{Name: "photo", Type: dataset.FieldBlob})
		target := base()
		target.Fields = append(target.Fields, dataset.Field{Name: "extra", Type: dataset.FieldString})

		check := CompareSchemas(source, target)
		assert.True(t, check.Match)
		assert.Empty(t, check.Mismatched)
		assert.Empty(t, check.Message)
	})

	t.Run("extra source field", func(t *testing.T) {
		source := base()
		source.Fields = append(source.Fields, dataset.Field{Name: "region_code", Type: dataset.FieldString})

		check := CompareSchemas(source, base())
		assert.False(t, check.Match)
		assert.Equal(t, []dataset.Field{{Name: "region_code", Type: dataset.FieldString}}, check.Mismatched)
		assert.Equal(t, "Source: region_code/String not found in target.", check.Message)
	})

	t.Run("type must match", func(t *testing.T) {
		target := base()
		target.Fields[2] = dataset.Field{Name: "area_m2", Type: dataset.FieldSingle}

		check := CompareSchemas(base(), target)
		assert.False(t, check.Match)
		assert.Equal(t, []dataset.Field{{Name: "area_m2", Type: dataset.FieldDouble}}, check.Mismatched)
	})

	t.Run("dataset specific editor fields", func(t *testing.T) {
		source := base()
		source.EditorField = "Modifier"
		source.Fields = append(source.Fields, dataset.Field{Name: "Modifier", Type: dataset.FieldString})

		assert.True(t, CompareSchemas(source, base()).Match)
	})
}
