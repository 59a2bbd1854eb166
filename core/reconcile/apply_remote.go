package reconcile

import (
	"context"
	"fmt"
	"time"

	"geo-refresh/core/dataset"
	"geo-refresh/core/featureservice"
	"geo-refresh/core/geometry"
	"geo-refresh/core/logger"
	"geo-refresh/core/utils"

	"go.uber.org/zap"
)

type outcomes func(*dataset.EditResult) []dataset.EditOutcome

func (a *Applier) applyRemote(ctx context.Context, layer dataset.Layer, cs *ChangeSet, log *zap.Logger) (*ApplyReport, error) {
	report := &ApplyReport{Backend: dataset.KindRemote.String()}

	updates := make([]dataset.Feature, 0, len(cs.Updates))
	for _, oid := range cs.UpdateIDs() {
		f, err := toFeature(cs, cs.Updates[oid], true)
		if err != nil {
			return report, err
		}
		updates = append(updates, f)
	}
	adds := make([]dataset.Feature, 0, len(cs.Adds))
	for _, rec := range cs.Adds {
		f, err := toFeature(cs, rec, false)
		if err != nil {
			return report, err
		}
		adds = append(adds, f)
	}
	deletes := cs.DeleteIDs()

	report.Updates.Records = len(updates)
	for i, chunk := range Chunk(updates, a.chunkSize) {
		err := a.submit(ctx, layer, &report.Updates, "updates", i, dataset.EditRequest{Updates: chunk},
			func(r *dataset.EditResult) []dataset.EditOutcome { return r.UpdateResults }, log)
		if err != nil {
			return report, err
		}
	}

	report.Adds.Records = len(adds)
	for i, chunk := range Chunk(adds, a.chunkSize) {
		err := a.submit(ctx, layer, &report.Adds, "adds", i, dataset.EditRequest{Adds: chunk},
			func(r *dataset.EditResult) []dataset.EditOutcome { return r.AddResults }, log)
		if err != nil {
			return report, err
		}
	}

	report.Deletes.Records = len(deletes)
	for i, chunk := range Chunk(deletes, a.chunkSize) {
		err := a.submit(ctx, layer, &report.Deletes, "deletes", i, dataset.EditRequest{Deletes: chunk},
			func(r *dataset.EditResult) []dataset.EditOutcome { return r.DeleteResults }, log)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

// submit sends one batch. Only cancellation of ctx is returned as an error;
// batch and record failures are recorded in phase and logged.
func (a *Applier) submit(ctx context.Context, layer dataset.Layer, phase *PhaseReport, name string, chunk int, req dataset.EditRequest, results outcomes, log *zap.Logger) error {
	phase.Batches++
	log = log.With(zap.String("phase", name), zap.Int("chunk", chunk), zap.Int("size", req.Size()))

	res, err := layer.ApplyEdits(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		phase.FailedBatches++
		if featureservice.IsGatewayTimeout(err) {
			phase.TimedOutBatches++
			log.Warn(fmt.Sprintf("Timeout occurred. Chunk %d (%d %s). Changes may still have been applied, check final counts.", chunk, req.Size(), name),
				logger.Code(logger.CodeWarning))
			return nil
		}
		log.Warn(fmt.Sprintf("Chunk %d (%d %s) failed.", chunk, req.Size(), name),
			logger.Code(logger.CodeWarning), zap.String("error", utils.FlattenError(err)))
		return nil
	}

	failed := 0
	for _, o := range results(res) {
		if o.Success {
			phase.Applied++
			continue
		}
		failed++
		if failed <= failureLogLimit {
			log.Warn("edit rejected", logger.Code(logger.CodeWarning), zap.String("outcome", o.String()))
		}
	}
	if failed > failureLogLimit {
		log.Warn(fmt.Sprintf("%d more rejected edits in chunk %d were not logged", failed-failureLogLimit, chunk),
			logger.Code(logger.CodeWarning))
	}
	phase.FailedRecords += failed
	return nil
}

// toFeature converts a changeset record to the remote edit shape. Dates are sent
// as UTC epoch milliseconds.
func toFeature(cs *ChangeSet, rec dataset.Record, withOID bool) (dataset.Feature, error) {
	f := dataset.Feature{Attributes: make(map[string]any, len(cs.Fields))}
	for _, name := range cs.Fields {
		v := rec[name]
		switch {
		case name == dataset.ShapeToken:
			g, err := geometry.Object(utils.ToString(v))
			if err != nil {
				return f, fmt.Errorf("invalid geometry for %s=%v: %w", cs.IDField, rec[cs.IDField], err)
			}
			f.Geometry = g
			continue
		case name == cs.ObjectIDField:
			if !withOID {
				continue
			}
		}
		if t, ok := v.(time.Time); ok {
			v = featureservice.ToEpochMillis(t)
		}
		f.Attributes[name] = v
	}
	return f, nil
}
