// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance that supports different environments (development vs production)
// and integrates with the Fiber web framework.
//
// # Refresh Events
//
// Refresh runs log with a small set of conventional keys so that entries can be
// filtered downstream: topic, code, metric, source_dataset, target_dataset and
// run_id. The helpers in fields.go build those zap fields.
//
// # Context Awareness
//
// The WithRayID helper extracts the RayID from a Fiber context and attaches it to the
// log entry, so that all logs related to a specific request can be correlated.
//
// # Configuration
//
// The package supports configuration for:
//   - Level: debug, info, warn, error
//   - Encoding: json (production) or console (development)
//   - OutputPath: an extra file sink (no rotation)
//
// # Usage
//
//	log, _ := logger.New(&cfg.Log)
//	log.Info("Data successfully refreshed",
//	    logger.Topic(logger.TopicRefresh),
//	    logger.Code(logger.CodeSuccess),
//	    logger.TargetDataset(target),
//	)
package logger
