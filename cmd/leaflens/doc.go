// Command leaflens is the command-line entry point for the plant-scan
// pipeline. "leaflens serve" runs the daemon (HTTP API plus background
// workflow); the scan commands talk to a running daemon over its HTTP API
// and fall back to processing in-process when no daemon is running.
package main
