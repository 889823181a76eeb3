// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Task and
// mine payloads reuse the HTTP API types so both transports stay in step. The
// server embeds the daemon while the client dials with a short timeout so CLI
// commands fail fast when the daemon is offline.
package ipc
