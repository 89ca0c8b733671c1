// Package objectstore is an S3-compatible signed-transfer control plane. It
// presigns single-use PUT credentials, finalizes uploads with a HEAD check,
// and reads stored images back for analysis.
package objectstore
