// Package catalog loads the reference catalog into immutable indexed
// snapshots and publishes them through a Holder.
//
// Snapshots index entries by tag phrase, by name and alias phrase, and by
// word, so the match engine and keyword search never scan the full catalog.
// The Watcher swaps in a new snapshot when the catalog file changes; a file
// that fails schema validation is logged and the previous snapshot is kept.
package catalog
