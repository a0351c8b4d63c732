// Package logging provides structured logging for posfleet-core.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// The level can also be set with POSFLEET_LOG_LEVEL.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("storage ready", "backend", "sqlite")
//	logger.Error("broadcast failed", "error", err)
//
// Never log connection strings, passwords or tokens.
package logging
