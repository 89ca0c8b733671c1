// Package daemon coordinates the long-running LeafLens process.
//
// It wires configuration, the scan store, the workflow manager, the catalog
// watcher, and the HTTP API into a single lifecycle with flock-based locking
// to prevent multiple instances. The API exposes createScan, getScan,
// process, and saveSelectedMatch along with catalog search and health.
//
// Keep orchestration logic here: the scan pipeline lives in lifecycle while
// the daemon focuses on startup, shutdown, and the transport surface.
package daemon
