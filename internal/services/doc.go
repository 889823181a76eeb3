// Package services defines shared utilities consumed by the pipeline stages,
// the task manager, and the API surface.
//
// Key responsibilities:
//   - Context helpers that stamp mine IDs, task IDs, stage names, date ranges,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (HTTP status, retryability) without string matching.
//
// Use these helpers when wiring new pipeline logic so error handling and
// observability stay uniform across the system.
package services
