// Package preflight provides readiness checks for filesystem paths, the mine
// catalog, and the imagery provider that Minewatch depends on.
//
// These checks run in two contexts:
//   - The daemon binary calls RunAll at startup and refuses to start when a
//     required check fails.
//   - The CLI "minewatch status" command displays the same results so
//     operators can see why a daemon would not start.
//
// Checks that only apply to one provider kind are skipped for the other.
package preflight
