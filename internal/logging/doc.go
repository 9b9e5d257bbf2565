// Package logging assembles structured slog loggers and formatting helpers used
// across vidscribe.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so orchestrator and worker code
// can tag log lines with job IDs, worker kinds, and correlation IDs. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
