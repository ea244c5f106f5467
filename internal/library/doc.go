// Package library finds locked files in the music directory and puts
// unlocked replacements back next to them.
//
// Discovery is a pure suffix filter over a single directory listing.
// Reconciliation moves a downloaded artifact to stem + artifact extension
// and refuses to overwrite anything already there, including names that
// differ only in Unicode normalization. Originals are removed in a separate
// cleanup pass once the whole batch is done.
package library
