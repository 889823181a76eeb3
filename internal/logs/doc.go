// Package logs provides file tailing and the log stream client shared by the
// CLI and daemon diagnostics.
//
// Tail reads the daemon log file with bounded memory, supports negative
// offsets for "last N lines", optionally keeps only lines containing a
// substring, and polls for new lines in follow mode. StreamClient reads the
// daemon's in-memory log stream over the HTTP API with mine, task, and level
// filters.
package logs
