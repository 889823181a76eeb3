// Command minewatch is the operator CLI for the minewatch daemon. It controls
// the daemon lifecycle, submits pipeline requests over IPC, queries stored
// pixels, alerts, and zones, and streams daemon logs. The run command executes
// the pipeline in-process without a daemon.
package main
