// Package imaging implements the Compressor: it shrinks a raw photo to a byte
// budget by stepping JPEG quality down to a floor and then reducing the long
// edge, within a bounded number of attempts.
//
// Compress is a pure function over its inputs. Raw images already inside the
// budget short-circuit on the first attempt and are returned unchanged.
package imaging
