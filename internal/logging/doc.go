// Package logging assembles structured slog loggers for the minewatch CLI and
// daemon.
//
// It owns the console and JSON handlers, level and output plumbing, the
// in-memory StreamHub behind the daemon's log endpoint, and context helpers
// that tag lines with mine IDs, task IDs, stages, and correlation IDs. Use
// NewNop in tests and wiring code that cannot fail.
package logging
