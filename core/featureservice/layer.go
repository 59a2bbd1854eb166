package featureservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"geo-refresh/core/dataset"
)

// defaultPageSize is used when a layer does not report maxRecordCount.
const defaultPageSize = 1000

var fieldTypes = map[string]dataset.FieldType{
	"esriFieldTypeOID":             dataset.FieldOID,
	"esriFieldTypeSmallInteger":    dataset.FieldSmallInteger,
	"esriFieldTypeInteger":         dataset.FieldInteger,
	"esriFieldTypeBigInteger":      dataset.FieldBigInteger,
	"esriFieldTypeSingle":          dataset.FieldSingle,
	"esriFieldTypeDouble":          dataset.FieldDouble,
	"esriFieldTypeString":          dataset.FieldString,
	"esriFieldTypeDate":            dataset.FieldDate,
	"esriFieldTypeDateOnly":        dataset.FieldDate,
	"esriFieldTypeTimestampOffset": dataset.FieldDate,
	"esriFieldTypeGUID":            dataset.FieldGUID,
	"esriFieldTypeGlobalID":        dataset.FieldGlobalID,
	"esriFieldTypeBlob":            dataset.FieldBlob,
	"esriFieldTypeRaster":          dataset.FieldRaster,
	"esriFieldTypeGeometry":        dataset.FieldGeometry,
	"esriFieldTypeXML":             dataset.FieldString,
}

// Layer is a feature-service layer. It implements dataset.Layer.
type Layer struct {
	client *Client
	url    string
	token  string
	info   *layerInfo
	desc   *dataset.Description
}

var _ dataset.Layer = (*Layer)(nil)

type layerInfo struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	GeometryType   string `json:"geometryType"`
	ObjectIDField  string `json:"objectIdField"`
	MaxRecordCount int    `json:"maxRecordCount"`
	Fields         []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"fields"`
	Extent *struct {
		SpatialReference json.RawMessage `json:"spatialReference"`
	} `json:"extent"`
	SourceSpatialReference json.RawMessage `json:"sourceSpatialReference"`
	EditFieldsInfo         *struct {
		CreationDateField string `json:"creationDateField"`
		CreatorField      string `json:"creatorField"`
		EditDateField     string `json:"editDateField"`
		EditorField       string `json:"editorField"`
	} `json:"editFieldsInfo"`
	GeometryProperties *struct {
		ShapeAreaFieldName   string `json:"shapeAreaFieldName"`
		ShapeLengthFieldName string `json:"shapeLengthFieldName"`
	} `json:"geometryProperties"`
	IsDataVersioned bool `json:"isDataVersioned"`
}

// Path returns the layer URL.
func (l *Layer) Path() string {
	return l.url
}

func (l *Layer) load(ctx context.Context) (*layerInfo, error) {
	if l.info != nil {
		return l.info, nil
	}
	var info layerInfo
	if err := l.client.call(ctx, http.MethodGet, l.url, withToken(nil, l.token), true, &info); err != nil {
		return nil, err
	}
	if len(info.Fields) == 0 && info.Type == "" {
		return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: "not a feature layer: " + l.url}
	}
	l.info = &info
	return l.info, nil
}

// Exists reports whether the URL answers as a feature layer.
func (l *Layer) Exists(ctx context.Context) (bool, error) {
	_, err := l.load(ctx)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Describe maps the layer definition to a dataset description.
func (l *Layer) Describe(ctx context.Context) (*dataset.Description, error) {
	if l.desc != nil {
		return l.desc, nil
	}
	info, err := l.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", l.url, err)
	}

	desc := &dataset.Description{
		Name:         info.Name,
		OIDField:     info.ObjectIDField,
		HasGeometry:  info.GeometryType != "",
		GeometryType: info.GeometryType,
		IsVersioned:  info.IsDataVersioned,
		Workspace:    dataset.WorkspaceService,
		IsHosted:     strings.Contains(strings.ToLower(l.url), "hosted"),
	}
	if info.Extent != nil && len(info.Extent.SpatialReference) > 0 {
		desc.SpatialReference = info.Extent.SpatialReference
	} else if len(info.SourceSpatialReference) > 0 {
		desc.SpatialReference = info.SourceSpatialReference
	}
	if info.EditFieldsInfo != nil {
		desc.CreatorField = info.EditFieldsInfo.CreatorField
		desc.CreatedAtField = info.EditFieldsInfo.CreationDateField
		desc.EditorField = info.EditFieldsInfo.EditorField
		desc.EditedAtField = info.EditFieldsInfo.EditDateField
	}
	if info.GeometryProperties != nil {
		desc.AreaField = info.GeometryProperties.ShapeAreaFieldName
		desc.LengthField = info.GeometryProperties.ShapeLengthFieldName
	}

	for _, f := range info.Fields {
		ft, ok := fieldTypes[f.Type]
		if !ok {
			ft = dataset.FieldString
		}
		if ft == dataset.FieldOID && desc.OIDField == "" {
			desc.OIDField = f.Name
		}
		desc.Fields = append(desc.Fields, dataset.Field{Name: f.Name, Type: ft})
	}

	l.desc = desc
	return desc, nil
}

// Count returns the number of features.
func (l *Layer) Count(ctx context.Context) (int64, error) {
	form := withToken(url.Values{}, l.token)
	form.Set("where", "1=1")
	form.Set("returnCountOnly", "true")

	var resp struct {
		Count json.Number `json:"count"`
	}
	if err := l.client.call(ctx, http.MethodPost, l.url+"/query", form, true, &resp); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", l.url, err)
	}
	return resp.Count.Int64()
}

// QueryIDs returns the OID field name and the identities matching where.
func (l *Layer) QueryIDs(ctx context.Context, where string) (string, []int64, error) {
	form := withToken(url.Values{}, l.token)
	form.Set("where", where)
	form.Set("returnIdsOnly", "true")

	var resp struct {
		ObjectIDFieldName string        `json:"objectIdFieldName"`
		ObjectIDs         []json.Number `json:"objectIds"`
	}
	if err := l.client.call(ctx, http.MethodPost, l.url+"/query", form, true, &resp); err != nil {
		return "", nil, fmt.Errorf("failed to query ids of %s: %w", l.url, err)
	}

	ids := make([]int64, 0, len(resp.ObjectIDs))
	for _, n := range resp.ObjectIDs {
		id, err := n.Int64()
		if err != nil {
			return "", nil, fmt.Errorf("invalid object id %q from %s", n, l.url)
		}
		ids = append(ids, id)
	}
	return resp.ObjectIDFieldName, ids, nil
}

type queryResponse struct {
	Features []struct {
		Attributes map[string]any  `json:"attributes"`
		Geometry   json.RawMessage `json:"geometry"`
	} `json:"features"`
	ExceededTransferLimit bool `json:"exceededTransferLimit"`
}

// Scan pages through every feature in OID order.
func (l *Layer) Scan(ctx context.Context, fields []string, fn func(dataset.Record) error) error {
	desc, err := l.Describe(ctx)
	if err != nil {
		return err
	}

	var (
		outFields  []string
		types      = make([]dataset.FieldType, len(fields))
		withShape  bool
		attrLookup = make([]string, len(fields))
	)
	for i, name := range fields {
		if name == dataset.ShapeToken {
			withShape = true
			continue
		}
		f, ok := desc.Field(name)
		if !ok {
			return fmt.Errorf("field %s not found in %s", name, l.url)
		}
		types[i] = f.Type
		attrLookup[i] = f.Name
		outFields = append(outFields, f.Name)
	}
	if len(outFields) == 0 {
		outFields = []string{desc.OIDField}
	}

	pageSize := l.info.MaxRecordCount
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	for offset := 0; ; {
		form := withToken(url.Values{}, l.token)
		form.Set("where", "1=1")
		form.Set("outFields", strings.Join(outFields, ","))
		form.Set("returnGeometry", strconv.FormatBool(withShape))
		form.Set("orderByFields", desc.OIDField+" ASC")
		form.Set("resultOffset", strconv.Itoa(offset))
		form.Set("resultRecordCount", strconv.Itoa(pageSize))

		var resp queryResponse
		if err := l.client.call(ctx, http.MethodPost, l.url+"/query", form, true, &resp); err != nil {
			return fmt.Errorf("failed to query %s: %w", l.url, err)
		}

		for _, feat := range resp.Features {
			rec := make(dataset.Record, len(fields))
			for i, name := range fields {
				if name == dataset.ShapeToken {
					rec[name] = geometryText(feat.Geometry)
					continue
				}
				rec[name] = fromService(attribute(feat.Attributes, attrLookup[i]), types[i])
			}
			if err := fn(rec); err != nil {
				return err
			}
		}

		offset += len(resp.Features)
		if len(resp.Features) == 0 || (!resp.ExceededTransferLimit && len(resp.Features) < pageSize) {
			return nil
		}
	}
}

// ApplyEdits submits one batch. Per-record failures are reported in the
// result, not as an error.
func (l *Layer) ApplyEdits(ctx context.Context, req dataset.EditRequest) (*dataset.EditResult, error) {
	form := withToken(url.Values{}, l.token)
	form.Set("rollbackOnFailure", "false")

	if len(req.Adds) > 0 {
		data, err := json.Marshal(req.Adds)
		if err != nil {
			return nil, err
		}
		form.Set("adds", string(data))
	}
	if len(req.Updates) > 0 {
		data, err := json.Marshal(req.Updates)
		if err != nil {
			return nil, err
		}
		form.Set("updates", string(data))
	}
	if len(req.Deletes) > 0 {
		ids := make([]string, len(req.Deletes))
		for i, id := range req.Deletes {
			ids[i] = strconv.FormatInt(id, 10)
		}
		form.Set("deletes", strings.Join(ids, ","))
	}

	var res dataset.EditResult
	if err := l.client.call(ctx, http.MethodPost, l.url+"/applyEdits", form, false, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func attribute(attrs map[string]any, name string) any {
	if v, ok := attrs[name]; ok {
		return v
	}
	for k, v := range attrs {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

func geometryText(raw json.RawMessage) any {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == "{}" {
		return nil
	}
	return s
}

// fromService converts a decoded JSON attribute to the Go type used for t.
func fromService(v any, t dataset.FieldType) any {
	n, isNum := v.(json.Number)
	switch {
	case v == nil:
		return nil
	case t == dataset.FieldDate && isNum:
		ms, err := n.Int64()
		if err != nil {
			f, _ := n.Float64()
			ms = int64(f)
		}
		return FromEpochMillis(ms)
	case t.IsNumeric() && isNum:
		if t == dataset.FieldSingle || t == dataset.FieldDouble {
			f, _ := n.Float64()
			return f
		}
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return f
	case isNum:
		return n.String()
	}
	return v
}

// ToEpochMillis converts a time to the epoch milliseconds used on the wire.
func ToEpochMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromEpochMillis converts epoch milliseconds to a UTC time.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
