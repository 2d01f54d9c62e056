// Package docstore reads and conditionally writes the single JSON document
// that holds the post queue.
//
// Every backend exposes the same compare-and-swap contract: Read returns the
// document with an opaque version token, and Write succeeds only when the
// caller's token still matches the stored document. There is no lock or lease
// between a read and its write; a losing writer gets ErrVersionConflict and
// must re-read.
//
// Backends: the GitHub contents API (sha as version), a local file (sha256 of
// the bytes as version, flock-guarded), and a sqlite row (revision counter).
package docstore
