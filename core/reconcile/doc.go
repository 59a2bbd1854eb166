// Package reconcile computes and applies row-level changesets between a source
// and a target dataset.
//
// # Architecture
//
// The package consists of three parts:
//
// 1. Schema check: CompareSchemas lists source fields missing from the target after
// dropping system maintained fields (editor tracking, shape measures) and
// unsupported types (blob, global id, raster, geometry).
//
// 2. Builder: Compare snapshots both datasets, projected to the comparable
// fields, and classifies every row as an add, update or delete keyed on a
// business identifier. Updates and deletes are keyed by the target's native row
// identity. Geometry is compared as serialized text first and as parsed shapes
// when the text differs.
//
// 3. Applier: Apply writes a ChangeSet to a remote layer in sequential chunks
// (updates, adds, deletes) or to a local table (deletes, updates, adds) inside an
// edit session when the table is versioned.
//
// # Usage Example
//
//	builder := reconcile.NewBuilder(log, reconcile.OptionsFromConfig(cfg.Refresh))
//	cs, err := builder.Compare(ctx, target, source, "parcel_id")
//	if err != nil {
//	    return err
//	}
//	report, err := reconcile.NewApplier(log, cfg.Refresh.ChunkSize).Apply(ctx, target, cs)
package reconcile
