// Package workflow runs the scan pipeline in the background.
//
// The Manager reclaims scans whose heartbeat went stale, polls the store for
// scans that can resume, and hands each one to the lifecycle controller on a
// bounded pool of workers. A scan is dispatched to at most one worker at a
// time. An hourly sweep removes staging directories that no pending scan
// references.
package workflow
