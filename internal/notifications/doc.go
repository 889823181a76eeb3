// Package notifications delivers pipeline events via ntfy.
//
// NewService publishes to the topic configured in config.toml and degrades
// to a no-op when none is set. Callers depend only on the Service interface
// and its Publish method; per-event toggles in the [notifications] section
// silence whole event classes.
package notifications
