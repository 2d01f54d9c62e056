// Package history keeps a sqlite log of scheduler runs for `herald history`
// and the daemon status endpoint.
package history
