// Package match implements the match engine that ranks catalog entries against
// a composite annotation.
//
// An entry's raw score is the weighted overlap between composite labels and
// web entities and the entry's tags, plus a name or alias bonus when the
// entry is named in the detected text. Raw scores map onto a 0-100 confidence
// band chosen by the strongest signal. Results are capped, deterministic for
// identical inputs, and flagged when below the configured confidence floor.
package match
