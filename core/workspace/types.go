package workspace

import (
	"strconv"
	"strings"
	"time"

	"geo-refresh/core/database"
	"geo-refresh/core/dataset"
	"geo-refresh/core/geometry"
	"geo-refresh/core/utils"
)

// fieldTypeOf maps a column storage type to a dataset field type.
func fieldTypeOf(columnType string) dataset.FieldType {
	base := strings.TrimSpace(columnType)
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	base = strings.TrimSuffix(base, " unsigned")

	switch base {
	case "int", "integer", "mediumint", "int4", "serial":
		return dataset.FieldInteger
	case "smallint", "tinyint", "int2":
		return dataset.FieldSmallInteger
	case "bigint", "int8", "bigserial":
		return dataset.FieldBigInteger
	case "float", "float4":
		return dataset.FieldSingle
	case "real", "double", "double precision", "float8", "numeric", "decimal":
		return dataset.FieldDouble
	case "date", "datetime", "timestamp", "timestamp without time zone", "timestamp with time zone", "timestamptz":
		return dataset.FieldDate
	case "uuid", "uniqueidentifier":
		return dataset.FieldGUID
	case "blob", "longblob", "mediumblob", "tinyblob", "bytea", "binary", "varbinary":
		return dataset.FieldBlob
	case "geometry":
		return dataset.FieldGeometry
	default:
		return dataset.FieldString
	}
}

// columnDDL returns the column type used when creating a table.
func columnDDL(driver string, t dataset.FieldType) string {
	switch driver {
	case database.DriverMySQL:
		switch t {
		case dataset.FieldOID:
			return "BIGINT AUTO_INCREMENT PRIMARY KEY"
		case dataset.FieldSmallInteger:
			return "SMALLINT"
		case dataset.FieldInteger:
			return "INT"
		case dataset.FieldBigInteger:
			return "BIGINT"
		case dataset.FieldSingle:
			return "FLOAT"
		case dataset.FieldDouble:
			return "DOUBLE"
		case dataset.FieldDate:
			return "DATETIME(3)"
		case dataset.FieldGUID, dataset.FieldGlobalID:
			return "VARCHAR(38)"
		case dataset.FieldBlob, dataset.FieldRaster, dataset.FieldGeometry:
			return "LONGBLOB"
		default:
			return "VARCHAR(255)"
		}
	case database.DriverPostgres:
		switch t {
		case dataset.FieldOID:
			return "BIGSERIAL PRIMARY KEY"
		case dataset.FieldSmallInteger:
			return "SMALLINT"
		case dataset.FieldInteger:
			return "INTEGER"
		case dataset.FieldBigInteger:
			return "BIGINT"
		case dataset.FieldSingle:
			return "FLOAT4"
		case dataset.FieldDouble:
			return "DOUBLE PRECISION"
		case dataset.FieldDate:
			return "TIMESTAMP"
		case dataset.FieldGUID, dataset.FieldGlobalID:
			return "VARCHAR(38)"
		case dataset.FieldBlob, dataset.FieldRaster, dataset.FieldGeometry:
			return "BYTEA"
		default:
			return "TEXT"
		}
	default:
		switch t {
		case dataset.FieldOID:
			return "INTEGER PRIMARY KEY AUTOINCREMENT"
		case dataset.FieldSmallInteger:
			return "SMALLINT"
		case dataset.FieldInteger:
			return "INTEGER"
		case dataset.FieldBigInteger:
			return "BIGINT"
		case dataset.FieldSingle:
			return "FLOAT"
		case dataset.FieldDouble:
			return "DOUBLE"
		case dataset.FieldDate:
			return "DATETIME"
		case dataset.FieldGUID, dataset.FieldGlobalID:
			return "VARCHAR(38)"
		case dataset.FieldBlob, dataset.FieldRaster, dataset.FieldGeometry:
			return "BLOB"
		default:
			return "TEXT"
		}
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// readValue converts a driver value to the Go type used for t.
func readValue(v any, t dataset.FieldType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case dataset.FieldOID, dataset.FieldSmallInteger, dataset.FieldInteger, dataset.FieldBigInteger:
		if i, ok := utils.ToInt64(v); ok {
			return i, nil
		}
	case dataset.FieldSingle, dataset.FieldDouble:
		if f, ok := utils.ToFloat(v); ok {
			return f, nil
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(utils.ToString(v)), 64); err == nil {
			return f, nil
		}
	case dataset.FieldDate:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC(), nil
		}
		s := utils.ToString(v)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return s, nil
	case dataset.FieldGeometry:
		if b, ok := v.([]byte); ok {
			if len(b) == 0 {
				return nil, nil
			}
			text, err := geometry.FromWKB(b)
			if err != nil || text == "" {
				return nil, err
			}
			return text, nil
		}
		return utils.ToString(v), nil
	case dataset.FieldBlob, dataset.FieldRaster:
		if b, ok := v.([]byte); ok {
			return append([]byte(nil), b...), nil
		}
		return v, nil
	}
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	if t == dataset.FieldString || t == dataset.FieldGUID || t == dataset.FieldGlobalID {
		return utils.ToString(v), nil
	}
	return v, nil
}

// writeValue converts a record value to the value stored for t.
func writeValue(v any, t dataset.FieldType) (any, error) {
	if t != dataset.FieldGeometry {
		if ts, ok := v.(time.Time); ok {
			return ts.UTC(), nil
		}
		return v, nil
	}
	if utils.IsBlank(v) {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	data, err := geometry.ToWKB(utils.ToString(v))
	if err != nil || data == nil {
		return nil, err
	}
	return data, nil
}
