// Package daemon coordinates the long-running Minewatch process.
//
// It wires configuration, the pixel store, the mine catalog, and the workflow
// manager into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon owns the HTTP API (task submission, task
// status, mine queries, log streaming, Prometheus metrics) and exposes the
// same operations to the IPC server.
//
// Keep orchestration logic here: pipeline stages live in their own packages
// while the daemon focuses on startup, shutdown, and request routing.
package daemon
