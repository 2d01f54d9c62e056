// Package publisher runs one scheduler pass over the queue.
//
// RunOnce loads the queue document, selects due units, dispatches them, and
// writes back the queue minus exactly the posts the platform accepted, using
// the version observed at load time. Structural failures (unreachable store,
// malformed document, lost write race) abort without a partial write;
// per-post failures are contained and reported in the Summary.
package publisher
