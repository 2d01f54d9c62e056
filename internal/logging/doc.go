// Package logging assembles structured slog loggers and formatting helpers used
// across Herald.
//
// It owns the console and JSON handlers, tees a JSON copy of every record into
// the log directory, and exposes context-aware helpers so scheduler code can
// tag log lines with run, post, and thread identifiers automatically. A no-op
// logger is provided for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// records with the same shape as the rest of the system.
package logging
