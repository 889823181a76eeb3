// Package store persists pixel observations, violation pixels, and alerts in
// SQLite.
//
// Every table carries a UNIQUE constraint over its natural key and all
// writes use INSERT OR IGNORE, so re-running the pipeline over data already
// on hand inserts nothing. SaveBatch commits a range's observations,
// violations, and alerts in one transaction; a failure leaves no partial
// range behind.
//
// Schema changes bump schemaVersion in schema.go. An older database is
// rejected with ErrSchemaMismatch rather than migrated.
package store
