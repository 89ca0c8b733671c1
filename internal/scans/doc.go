// Package scans persists scan records and exposes the status transitions the
// lifecycle controller drives them through.
//
// The Store manages the database connection (SQLite through modernc by
// default, Postgres through pgx when configured), schema initialization,
// compare-and-set status transitions, heartbeat tracking, and recovery of
// records abandoned in an in-flight state. Records are never deleted here;
// removal is an administrative action outside the pipeline.
//
// Structured fields (image references, the composite annotation, candidates,
// failures) are stored as JSON columns so both drivers share one schema.
// Schema changes bump schemaVersion in schema.go.
package scans
