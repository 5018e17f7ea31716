// Package logging provides structured logging for the Synapse service.
//
// It wraps Go's log/slog package so every component logs the same way:
// JSON in production, text for development, level filtering, and default
// service/version fields on every entry.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.ForEntry("entry-1", "kitchen").Info("bridge started")
//
// Never log secrets, tokens or passwords.
package logging
