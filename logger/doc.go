// Package logger provides structured logging for tiered pipelines using
// zerolog.
//
// Loggers are scoped to a component (a stage, a source, the engine) and
// carry the call identifier of the retrieval they serve, so every line of
// one call can be correlated.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("memory")
//	log.Debug("hit", logger.Fields(logger.FieldCallID, id, logger.FieldResults, 3))
package logger
