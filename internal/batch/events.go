package batch

// EventType identifies what happened inside a run.
type EventType string

const (
	EventRunQueued     EventType = "run_queued"
	EventRunStarted    EventType = "run_started"
	EventItemStarted   EventType = "item_started"
	EventItemSucceeded EventType = "item_succeeded"
	EventItemFailed    EventType = "item_failed"
	EventItemSkipped   EventType = "item_skipped"
	EventProgress      EventType = "progress"
	EventDeleteWarning EventType = "delete_warning"
	EventRunFinished   EventType = "run_finished"
)

// Event is one state change, delivered to subscribers (and over SSE) in
// execution order. For any item the sequence is Started, then exactly one
// of Succeeded/Failed/Skipped, then Progress; RunFinished is strictly last.
type Event struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id"`

	// Item events
	Path       string      `json:"path,omitempty"`
	OutputPath string      `json:"output_path,omitempty"`
	Kind       FailureKind `json:"kind,omitempty"`
	Reason     string      `json:"reason,omitempty"`

	// Progress events: whole percent, monotonically non-decreasing,
	// exactly 100 once every item is terminal.
	Percent int `json:"percent,omitempty"`

	// Run-finished events
	Success      bool `json:"success,omitempty"`
	SuccessCount int  `json:"success_count,omitempty"`
	TotalCount   int  `json:"total_count,omitempty"`
}
