// Package api defines wire-format types and converters for the daemon HTTP
// API and the CLI's --json output. It translates queue posts and run
// summaries into transport-friendly DTOs so consumers never couple to
// internal types.
//
// # Key Types
//
// QueueItem: one scheduled post with its derived status (due, pending, or
// invalid) relative to a reference time.
//
// RunStatus: one scheduler run as reported by the publish driver or read
// back from run history.
//
// DaemonStatus: daemon runtime information including the last run.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Image payloads are never echoed; only their media type and size are.
package api
