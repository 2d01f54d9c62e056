package logs

import (
	"encoding/json"
	"strings"

	"herald/internal/logging"
)

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Filter selects JSON log records. Zero fields match everything. Lines that
// are not JSON only pass an empty filter.
type Filter struct {
	MinLevel  string
	Component string
	RunID     string
	PostID    string
}

func (f Filter) empty() bool {
	return f.MinLevel == "" && f.Component == "" && f.RunID == "" && f.PostID == ""
}

// Match reports whether line passes the filter. Run and post ids match by
// prefix so the short ids printed by the CLI work.
func (f Filter) Match(line string) bool {
	if f.empty() {
		return true
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return false
	}
	if f.MinLevel != "" {
		want, ok := levelRank[strings.ToLower(f.MinLevel)]
		got, known := levelRank[stringField(record, "level")]
		if ok && (!known || got < want) {
			return false
		}
	}
	if f.Component != "" && !strings.EqualFold(stringField(record, logging.FieldComponent), f.Component) {
		return false
	}
	if f.RunID != "" && !strings.HasPrefix(stringField(record, logging.FieldRunID), f.RunID) {
		return false
	}
	if f.PostID != "" && !strings.HasPrefix(stringField(record, logging.FieldPostID), f.PostID) {
		return false
	}
	return true
}

func stringField(record map[string]any, key string) string {
	value, _ := record[key].(string)
	return strings.TrimSpace(value)
}
