// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// All output goes to stderr. The coordinator prints its console lines on
// stdout and worker children stream samples on stdout, so logs must stay off it.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Worker spawned", zap.Int("index", 0), zap.Int("pid", pid))
//	logger.Warn("Worker abandoned", zap.String("worker", name))
package logging
