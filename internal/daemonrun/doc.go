// Package daemonrun assembles the LeafLens runtime from configuration.
//
// Build wires the scan store, staging area, compressor, upload strategy
// chain, analysis backend, catalog, notifier, lifecycle controller, and
// workflow manager. Run wraps that runtime in the daemon process lifecycle:
// log files, retention, pid file, signal handling, and the HTTP API.
package daemonrun
