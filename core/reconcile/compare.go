package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"geo-refresh/core/dataset"
	"geo-refresh/core/geometry"
	"geo-refresh/core/logger"
	"geo-refresh/core/utils"

	"go.uber.org/zap"
)

// Builder computes changesets between a source and a target dataset.
type Builder struct {
	logger *zap.Logger
	opts   Options
}

// NewBuilder creates a Builder.
func NewBuilder(logger *zap.Logger, opts Options) *Builder {
	if opts.GeometryTolerance <= 0 {
		opts.GeometryTolerance = geometry.DefaultTolerance
	}
	return &Builder{logger: logger, opts: opts}
}

// Compare diffs source against target, matching rows on idField. Neither dataset
// is modified. A non-empty changeset is also written as an artifact when
// Options.ChangesetDir is set.
func (b *Builder) Compare(ctx context.Context, target, source dataset.Dataset, idField string) (*ChangeSet, error) {
	started := time.Now()
	log := b.logger.With(logger.Topic(logger.TopicCompare), logger.TargetDataset(target.Path()))

	cs, err := b.compare(ctx, target, source, idField, log)
	if err != nil {
		log.Error("comparison failed", logger.Code(logger.CodeFailure), zap.String("error", utils.FlattenError(err)))
		return nil, fmt.Errorf("failed to compare %s: %w", target.Path(), err)
	}

	log.Info("comparison finished",
		logger.Code(logger.CodeSuccess),
		logger.Metric(time.Since(started).Seconds()),
		zap.Int("adds", len(cs.Adds)),
		zap.Int("updates", len(cs.Updates)),
		zap.Int("deletes", len(cs.Deletes)))
	return cs, nil
}

func (b *Builder) compare(ctx context.Context, target, source dataset.Dataset, idField string, log *zap.Logger) (*ChangeSet, error) {
	tdesc, err := target.Describe(ctx)
	if err != nil {
		return nil, err
	}
	sdesc, err := source.Describe(ctx)
	if err != nil {
		return nil, err
	}

	oidField, fields, err := comparisonFields(tdesc, sdesc, idField)
	if err != nil {
		return nil, err
	}
	log.Debug("comparison fields", zap.Strings("fields", fields), zap.String("id_field", idField), zap.String("oid_field", oidField))

	types := tdesc.FieldTypes()
	types[dataset.ShapeToken] = dataset.FieldGeometry

	targetCols := []column{{name: OriginIDField, from: oidField}}
	sourceCols := make([]column, 0, len(fields))
	for _, f := range fields {
		targetCols = append(targetCols, column{name: f, from: f})
		sourceCols = append(sourceCols, column{name: f, from: sourceName(sdesc, f)})
	}

	src, err := takeSnapshot(ctx, source, sourceCols, idField)
	if err != nil {
		return nil, err
	}
	defer src.release()
	if err := checkDuplicates(src, idField); err != nil {
		return nil, err
	}

	tgt, err := takeSnapshot(ctx, target, targetCols, idField)
	if err != nil {
		return nil, err
	}
	defer tgt.release()

	cs := NewChangeSet(idField, oidField)
	cs.Fields = append([]string{OriginIDField}, fields...)
	if tdesc.HasGeometry {
		cs.SpatialReference = tdesc.SpatialReference
	}

	b.findDeletes(cs, src, tgt)
	sourceCount, matched := b.findAddsAndUpdates(cs, src, tgt, fields, types, log)

	log.Debug("row counts compared",
		logger.Topic(logger.TopicRowCounts),
		zap.Int("source_count", sourceCount),
		zap.Int("target_count", matched),
		logger.Metric(float64(sourceCount-matched)))

	restoreIdentity(cs)
	for _, f := range cs.Fields {
		cs.FieldTypes[f] = types[f]
	}
	cs.FieldTypes[oidField] = dataset.FieldOID

	if !cs.Empty() && b.opts.ChangesetDir != "" {
		path, err := WriteArtifact(ctx, b.opts, target.Path(), cs)
		switch {
		case errors.Is(err, ErrArchive):
			log.Warn("changeset archive upload failed",
				logger.Topic(logger.TopicArtifact),
				logger.Code(logger.CodeWarning),
				zap.String("path", path),
				zap.String("error", utils.FlattenError(err)))
		case err != nil:
			return nil, err
		}
		cs.Artifact = path
		log.Info("changeset written", logger.Topic(logger.TopicArtifact), zap.String("path", path))
	}

	for _, m := range []struct {
		name  string
		count int
	}{{"adds", len(cs.Adds)}, {"updates", len(cs.Updates)}, {"deletes", len(cs.Deletes)}} {
		log.Debug(fmt.Sprintf("%s %s count: %d", target.Path(), m.name, m.count),
			zap.String("change", m.name), logger.Metric(float64(m.count)))
	}
	return cs, nil
}

// comparisonFields returns the target OID field and the ordered comparable
// fields, led by the geometry placeholder for feature classes.
func comparisonFields(tdesc, sdesc *dataset.Description, idField string) (string, []string, error) {
	omit := omittedNames(tdesc, sdesc)
	oidField := tdesc.OIDField

	var (
		fields  []string
		idFound bool
	)
	for _, f := range tdesc.Fields {
		if excluded(f, omit) {
			continue
		}
		if f.Type == dataset.FieldOID || strings.EqualFold(f.Name, oidField) {
			oidField = f.Name
			continue
		}
		if f.Name == idField {
			idFound = true
		}
		fields = append(fields, f.Name)
	}
	if !idFound {
		return "", nil, fmt.Errorf("%w: %s", ErrMissingIDField, idField)
	}
	if oidField == "" {
		return "", nil, fmt.Errorf("target has no object id field")
	}
	if tdesc.HasGeometry {
		fields = append([]string{dataset.ShapeToken}, fields...)
	}
	return oidField, fields, nil
}

// CopyFields returns the target fields written by a full copy from source: the
// comparable fields the source also has, led by dataset.ShapeToken when both
// datasets carry geometry.
func CopyFields(tdesc, sdesc *dataset.Description) []string {
	omit := omittedNames(tdesc, sdesc)
	var fields []string
	if tdesc.HasGeometry && sdesc.HasGeometry {
		fields = append(fields, dataset.ShapeToken)
	}
	for _, f := range tdesc.Fields {
		if excluded(f, omit) || f.Type == dataset.FieldOID || strings.EqualFold(f.Name, tdesc.OIDField) {
			continue
		}
		if _, ok := sdesc.Field(f.Name); ok {
			fields = append(fields, f.Name)
		}
	}
	return fields
}

// sourceName resolves a target field name against the source schema.
func sourceName(sdesc *dataset.Description, name string) string {
	if name == dataset.ShapeToken {
		if sdesc.HasGeometry {
			return name
		}
		return ""
	}
	if f, ok := sdesc.Field(name); ok {
		return f.Name
	}
	return ""
}

func checkDuplicates(src *snapshot, idField string) error {
	for _, idx := range src.index {
		if len(idx) > 1 {
			return fmt.Errorf("%w: %s=%v appears %d times, resolve duplicates and run again",
				ErrDuplicateIdentifier, idField, src.rows[idx[0]][idField], len(idx))
		}
	}
	return nil
}

// findDeletes marks target rows with a blank or repeated identifier, or with no
// source counterpart.
func (b *Builder) findDeletes(cs *ChangeSet, src, tgt *snapshot) {
	seen := make(map[string]struct{}, len(tgt.rows))
	for _, row := range tgt.rows {
		oid, _ := utils.ToInt64(row[OriginIDField])
		key := idKey(row[cs.IDField])
		if key == "" {
			cs.Deletes[oid] = row.Clone()
			continue
		}
		if _, dup := seen[key]; dup {
			cs.Deletes[oid] = row.Clone()
			continue
		}
		seen[key] = struct{}{}
		if len(src.index[key]) == 0 {
			cs.Deletes[oid] = row.Clone()
		}
	}
}

// findAddsAndUpdates walks the source and returns the number of source rows and
// of target rows they were matched against.
func (b *Builder) findAddsAndUpdates(cs *ChangeSet, src, tgt *snapshot, fields []string, types map[string]dataset.FieldType, log *zap.Logger) (int, int) {
	var sourceCount, matched int
	for _, srow := range src.rows {
		sourceCount++
		candidates := tgt.lookup(srow[cs.IDField])
		if len(candidates) == 0 {
			cs.Adds = append(cs.Adds, srow.Clone())
			continue
		}

		live := false
		for _, trow := range candidates {
			oid, _ := utils.ToInt64(trow[OriginIDField])
			if _, deleted := cs.Deletes[oid]; deleted {
				continue
			}
			live = true
			matched++
			if b.rowChanged(srow, trow, fields, types, log) {
				upd := srow.Clone()
				upd[OriginIDField] = oid
				cs.Updates[oid] = upd
			}
			break
		}
		if live {
			continue
		}
		if b.opts.ReaddDeletedMatches {
			cs.Adds = append(cs.Adds, srow.Clone())
			continue
		}
		log.Warn("source row matches a target row scheduled for deletion and is not added",
			logger.Code(logger.CodeWarning),
			zap.Any(cs.IDField, srow[cs.IDField]))
	}
	return sourceCount, matched
}

func (b *Builder) rowChanged(srow, trow dataset.Record, fields []string, types map[string]dataset.FieldType, log *zap.Logger) bool {
	for _, f := range fields {
		sv, tv := srow[f], trow[f]
		if types[f] == dataset.FieldGeometry {
			if !b.geometryEqual(sv, tv, log) {
				return true
			}
			continue
		}
		if !valuesEqual(sv, tv) {
			return true
		}
	}
	return false
}

// geometryEqual compares serialized geometries first and falls back to a
// semantic comparison of the parsed shapes.
func (b *Builder) geometryEqual(x, y any, log *zap.Logger) bool {
	xs, ys := utils.ToString(x), utils.ToString(y)
	if xs == ys {
		return true
	}
	if xs == "" || ys == "" {
		return false
	}
	eq, err := geometry.EqualText(xs, ys, b.opts.GeometryTolerance)
	if err != nil {
		log.Debug("geometry comparison failed", zap.Error(err))
		return false
	}
	return eq
}

// valuesEqual compares two field values treating nil and "" as equal.
func valuesEqual(a, b any) bool {
	if utils.IsBlank(a) || utils.IsBlank(b) {
		return utils.IsBlank(a) && utils.IsBlank(b)
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	if ba, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return bytes.Equal(ba, bb)
		}
		return string(ba) == utils.ToString(b)
	}
	if fa, ok := utils.ToFloat(a); ok {
		fb, ok := utils.ToFloat(b)
		if !ok {
			return false
		}
		if isInteger(a) && isInteger(b) {
			x, _ := utils.ToInt64(a)
			y, _ := utils.ToInt64(b)
			return x == y
		}
		return fa == fb
	}
	if _, ok := utils.ToFloat(b); ok {
		return false
	}
	return utils.ToString(a) == utils.ToString(b)
}

// isInteger reports whether a numeric value has an integer type.
func isInteger(v any) bool {
	switch v.(type) {
	case float32, float64:
		return false
	}
	return true
}

// restoreIdentity renames the synthetic identity column to the target OID field.
func restoreIdentity(cs *ChangeSet) {
	cs.Fields[0] = cs.ObjectIDField
	rename := func(rec dataset.Record) {
		if v, ok := rec[OriginIDField]; ok {
			delete(rec, OriginIDField)
			rec[cs.ObjectIDField] = v
		}
	}
	for _, rec := range cs.Updates {
		rename(rec)
	}
	for _, rec := range cs.Deletes {
		rename(rec)
	}
}
