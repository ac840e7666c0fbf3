// Package logging assembles structured slog loggers and formatting helpers used
// across quire.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so engine and agent code can
// tag log lines with project IDs, stages, units and run IDs. The package
// also provides a no-op logger for tests and a tee handler so a foreground run
// can mirror its output into the project's own log file.
package logging
