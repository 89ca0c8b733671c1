// Package lifecycle drives a scan record from created to matched or unmatched.
//
// The Controller owns the record while a pipeline run is active: every write
// goes through it under a per-record lock, so concurrent scans never contend
// while one scan is never written by two goroutines. Photos of a scan are
// compressed, uploaded, and analyzed independently; merging and matching wait
// for every photo to report.
//
// Each stage persists its result before the next begins. A stage that fails
// rolls the record back to the last completed status and records the failure,
// which holds the record until Retry clears it.
package lifecycle
