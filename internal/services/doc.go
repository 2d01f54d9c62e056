// Package services defines shared utilities consumed by the scheduler core and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run, post, and thread identifiers for logging.
//   - Sentinel error markers plus the Wrap helper, and Kind, which maps any
//     error to a stable label used by notifications and metrics.
//
// Subpackages hold the clients for third-party services (the Bluesky PDS and
// the drafting language model).
package services
