// Package services defines shared utilities consumed by the pipeline stages
// and the clients of external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp scan IDs, stage names, photo indexes, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and the FailureKind
//     classification persisted on scan records.
//
// Collaborator clients live in subpackages (controlplane, ingest, vision,
// gemini, analyzer, catalogapi) and share the HTTP conventions defined in
// httpclient.
package services
