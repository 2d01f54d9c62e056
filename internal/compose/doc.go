// Package compose builds queue entries from operator input.
//
// A Session walks a draft through idle → drafting → scheduling → idle with
// explicit transitions; each command handler receives the session instead of
// sharing process state. SplitThread breaks long text into thread parts and
// Thread lays them out one minute apart under a fresh thread id.
package compose
