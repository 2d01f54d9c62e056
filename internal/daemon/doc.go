// Package daemon runs the long-lived Herald scheduler process.
//
// A Daemon holds an instance lock, triggers a publish run immediately and
// then on every scheduler interval, optionally re-runs when the local queue
// file changes, and serves a small HTTP API (health, status, queue views,
// run history, manual run trigger, and Prometheus metrics).
//
// Runs themselves go through runner.Runner, so a daemon run and a one-shot
// `herald run` share the same run lock and never overlap.
package daemon
