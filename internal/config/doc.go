// Package config loads, normalizes, and validates Minewatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MINEWATCH_API_TOKEN and MINEWATCH_PROVIDER_TOKEN. The Config type centralizes
// every knob the daemon and CLI need, from the mine catalog location to the
// isolation forest and zone thresholds.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
