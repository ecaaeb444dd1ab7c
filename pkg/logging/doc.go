// Package logging provides structured logging configuration for mockenv.
//
// This package wraps log/slog so that every component of the mock server
// (HTTP handler, proxy, callback dispatcher, WebSocket hubs, watchers) logs
// the same way.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("environment started", "port", 3000)
//	logger.Error("callback failed", "error", err)
//
// # Integration
//
// Components accept a *slog.Logger via a setter or option. If no logger is
// provided they use logging.Nop(). Component() adds the conventional
// "component" attribute.
//
// Operational logs are distinct from the request log kept in
// pkg/requestlog, which records served transactions for inspection.
package logging
