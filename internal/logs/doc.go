// Package logs reads Herald's JSON log files for the `herald logs` command.
//
// Last returns the final lines of a file with bounded memory, Follow streams
// lines appended after an offset until the context ends, and Filter narrows
// records by level, component, run, or post.
package logs
