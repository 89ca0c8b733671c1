// Package api defines wire-format types and converters for the HTTP API and
// the CLI's JSON output, and converts scan records into transport DTOs.
//
// # Key Types
//
// Scan: transport representation of a scan record with image references,
// candidates, suggestions, and failure notes.
//
// ProcessResponse: the outcome of process(scanId), carrying either
// candidates or keyword suggestions.
//
// ErrorResponse: typed failure payload with a stable kind string.
//
// DaemonStatus: aggregated runtime information including database and
// catalog health.
//
// # Converters
//
// FromRecord: scans.Record -> Scan.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// HTTPStatus: services.FailureKind -> HTTP status code.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses and failure kinds are exposed as
// lowercase strings. Timestamps use RFC3339 with milliseconds.
package api
