package logger

import "go.uber.org/zap"

// Event codes attached to refresh log entries.
const (
	CodeSuccess = "SUCCESS"
	CodeFailure = "FAILURE"
	CodeWarning = "WARNING"
)

// Topics group log entries by the stage that produced them.
const (
	TopicRefresh   = "refresh"
	TopicSchema    = "schema"
	TopicCompare   = "compare"
	TopicApply     = "apply"
	TopicTruncate  = "truncate"
	TopicMaintain  = "maintenance"
	TopicAuth      = "authentication"
	TopicArtifact  = "changeset"
	TopicRowCounts = "row_count"
)

// Topic tags an entry with the stage that produced it.
func Topic(t string) zap.Field { return zap.String("topic", t) }

// Code tags an entry with an outcome code.
func Code(c string) zap.Field { return zap.String("code", c) }

// Metric attaches a numeric measurement such as a row count or elapsed seconds.
func Metric(v float64) zap.Field { return zap.Float64("metric", v) }

// SourceDataset names the dataset data is read from.
func SourceDataset(p string) zap.Field { return zap.String("source_dataset", p) }

// TargetDataset names the dataset being refreshed.
func TargetDataset(p string) zap.Field { return zap.String("target_dataset", p) }

// RunID correlates every entry of a single refresh.
func RunID(id string) zap.Field { return zap.String("run_id", id) }
