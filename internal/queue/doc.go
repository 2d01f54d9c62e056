// Package queue defines the scheduled post model and the codec for the JSON
// document that holds the queue.
//
// The document is a JSON array of posts with a fixed key order and two-space
// indentation so diffs stay reviewable in a version-controlled store. Posts
// carry a stable synthetic id; documents written before ids existed get a
// deterministic id derived from their content, which is persisted on the next
// save.
//
// Repository couples the codec with a docstore.Store and provides Mutate, the
// read-modify-conditional-write loop used by every producer that edits the
// queue.
package queue
