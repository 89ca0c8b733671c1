// Package upload implements the upload broker: an ordered chain of transport
// strategies (signed transfer, delegated ingest, inline) that persists a
// compressed image and returns a stable reference.
//
// Each strategy failure falls through to the next. A collaborator answering
// ErrUnsupported is skipped without retry. When every strategy fails the
// broker returns *FailedError carrying the last concrete cause.
package upload
