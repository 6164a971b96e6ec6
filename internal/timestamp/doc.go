// Package timestamp parses the timecode and duration encodings found in
// script sheets into normalized in-script offsets.
package timestamp
