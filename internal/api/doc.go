// Package api defines wire-format types and converters for the HTTP and IPC
// layers. It translates internal pipeline, task, and store models into
// transport-friendly DTOs so clients never couple to internal types.
//
// # Key Types
//
// Task: transport representation of a pipeline task with progress and result.
//
// PipelineRequest: the body accepted by the submit and run endpoints.
//
// Pixel, Violation, Alert: stored rows for a mine and window.
//
// DaemonStatus: daemon running state, task counts, and file locations.
//
// # Services
//
// MineService answers the read-only mine queries (details, pixels, zones,
// violations, alerts, spectral signature, KPI) on top of the catalog and
// the store.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Calendar dates are ISO 8601 strings and
// timestamps use RFC3339 with milliseconds.
package api
