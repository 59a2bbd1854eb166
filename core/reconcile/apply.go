package reconcile

import (
	"context"
	"fmt"
	"time"

	"geo-refresh/core/dataset"
	"geo-refresh/core/logger"
	"geo-refresh/core/utils"

	"go.uber.org/zap"
)

// failureLogLimit is the number of rejected edits logged individually per batch.
const failureLogLimit = 3

// PhaseReport summarizes one of the add, update or delete phases.
type PhaseReport struct {
	Records         int `json:"records"`
	Applied         int `json:"applied"`
	Batches         int `json:"batches"`
	FailedBatches   int `json:"failed_batches"`
	TimedOutBatches int `json:"timed_out_batches"`
	FailedRecords   int `json:"failed_records"`
}

// ApplyReport is the outcome of Apply.
type ApplyReport struct {
	Backend string        `json:"backend"`
	Updates PhaseReport   `json:"updates"`
	Adds    PhaseReport   `json:"adds"`
	Deletes PhaseReport   `json:"deletes"`
	Elapsed time.Duration `json:"elapsed"`
}

// Partial reports whether some edits were rejected or some batches failed.
func (r *ApplyReport) Partial() bool {
	for _, p := range []PhaseReport{r.Updates, r.Adds, r.Deletes} {
		if p.FailedBatches > 0 || p.FailedRecords > 0 {
			return true
		}
	}
	return false
}

// Applier writes changesets to targets.
type Applier struct {
	logger    *zap.Logger
	chunkSize int
}

// NewApplier creates an Applier sending chunkSize edits per remote batch.
func NewApplier(logger *zap.Logger, chunkSize int) *Applier {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return &Applier{logger: logger, chunkSize: chunkSize}
}

// Apply writes cs to target. Remote layers receive chunked applyEdits calls in
// the order updates, adds, deletes; batch failures are logged and do not stop
// later batches. Local tables are edited in the order deletes, updates, adds,
// inside an edit session when versioned; any error aborts and is returned.
func (a *Applier) Apply(ctx context.Context, target dataset.Dataset, cs *ChangeSet) (*ApplyReport, error) {
	started := time.Now()
	log := a.logger.With(logger.Topic(logger.TopicApply), logger.TargetDataset(target.Path()))

	var (
		report *ApplyReport
		err    error
	)
	switch t := target.(type) {
	case dataset.Layer:
		report, err = a.applyRemote(ctx, t, cs, log)
	case dataset.Editable:
		report, err = a.applyLocal(ctx, t, cs, log)
	default:
		err = fmt.Errorf("dataset %s cannot be edited", target.Path())
	}
	if err != nil {
		log.Error("failed to apply changes", logger.Code(logger.CodeFailure), zap.String("error", utils.FlattenError(err)))
		return report, fmt.Errorf("failed to apply changes to %s: %w", target.Path(), err)
	}

	report.Elapsed = time.Since(started)
	code := logger.CodeSuccess
	if report.Partial() {
		code = logger.CodeWarning
	}
	log.Info("changes applied",
		logger.Code(code),
		logger.Metric(report.Elapsed.Seconds()),
		zap.Int("adds", report.Adds.Applied),
		zap.Int("updates", report.Updates.Applied),
		zap.Int("deletes", report.Deletes.Applied))
	return report, nil
}

func (a *Applier) applyLocal(ctx context.Context, table dataset.Editable, cs *ChangeSet, log *zap.Logger) (*ApplyReport, error) {
	desc, err := table.Describe(ctx)
	if err != nil {
		return nil, err
	}
	report := &ApplyReport{Backend: dataset.KindLocal.String()}
	if desc.IsVersioned {
		log.Debug("starting edit session")
	}

	err = table.Edit(ctx, func(ed dataset.Editor) error {
		if ids := cs.DeleteIDs(); len(ids) > 0 {
			report.Deletes.Records = len(ids)
			n, err := ed.DeleteByOID(ctx, ids)
			if err != nil {
				return err
			}
			report.Deletes.Applied = int(n)
		}

		report.Updates.Records = len(cs.Updates)
		for _, oid := range cs.UpdateIDs() {
			if err := ed.UpdateByOID(ctx, oid, cs.Updates[oid]); err != nil {
				return err
			}
			report.Updates.Applied++
		}

		report.Adds.Records = len(cs.Adds)
		fields := cs.DataFields()
		for _, chunk := range Chunk(cs.Adds, a.chunkSize) {
			report.Adds.Batches++
			if err := ed.Insert(ctx, fields, chunk); err != nil {
				return err
			}
			report.Adds.Applied += len(chunk)
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	if desc.IsVersioned {
		log.Debug("edit session saved")
	}
	return report, nil
}
