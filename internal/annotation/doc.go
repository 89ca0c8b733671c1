// Package annotation holds the per-image analysis output and the merger that
// folds one scan's sets into a single composite signal.
package annotation
