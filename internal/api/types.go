package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Post statuses derived at a reference time.
const (
	StatusDue     = "due"
	StatusPending = "pending"
	StatusInvalid = "invalid"
)

// QueueItem describes a scheduled post in a transport-friendly format.
type QueueItem struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Length       int    `json:"length"`
	ScheduleTime string `json:"scheduleTime"`
	Status       string `json:"status"`
	ThreadID     string `json:"threadId,omitempty"`
	ThreadIndex  int    `json:"threadIndex,omitempty"`
	ThreadSize   int    `json:"threadSize,omitempty"`
	ImageType    string `json:"imageType,omitempty"`
	ImageBytes   int    `json:"imageBytes,omitempty"`
	Problem      string `json:"problem,omitempty"`
}

// RunStatus summarizes one scheduler run.
type RunStatus struct {
	RunID       string   `json:"runId"`
	StartedAt   string   `json:"startedAt"`
	DurationMS  int64    `json:"durationMs"`
	DryRun      bool     `json:"dryRun,omitempty"`
	QueueSize   int      `json:"queueSize"`
	DueUnits    int      `json:"dueUnits"`
	Published   int      `json:"published"`
	FailedUnits int      `json:"failedUnits"`
	Pending     int      `json:"pending"`
	Invalid     int      `json:"invalid"`
	Degraded    []string `json:"degraded,omitempty"`
	Wrote       bool     `json:"wrote"`
	Retried     bool     `json:"retried,omitempty"`
	Error       string   `json:"error,omitempty"`
	Outcome     string   `json:"outcome"`
	Summary     string   `json:"summary"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool       `json:"running"`
	PID          int        `json:"pid"`
	StartedAt    string     `json:"startedAt,omitempty"`
	StoreBackend string     `json:"storeBackend"`
	StorePath    string     `json:"storePath"`
	LockFilePath string     `json:"lockFilePath"`
	IntervalSecs int        `json:"intervalSeconds"`
	NextRun      string     `json:"nextRun,omitempty"`
	Runs         int        `json:"runs"`
	LastRun      *RunStatus `json:"lastRun,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
}

// QueueStatsResponse provides per-status post counts.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueListResponse wraps a collection of queue items for API responses.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse wraps a single queue item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}

// HistoryResponse wraps recent runs, newest first.
type HistoryResponse struct {
	Runs []RunStatus `json:"runs"`
}
