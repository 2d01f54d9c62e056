// Package notifications pushes run summaries and failures to ntfy.
//
// NewService returns a no-op when no topic is configured, so callers never
// branch on whether notifications are enabled. The summary and error toggles
// in config.toml are honoured inside the service.
package notifications
