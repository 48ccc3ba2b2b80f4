package batch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// Status represents the current state of a run
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ItemStatus represents the terminal (or in-flight) state of one item
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemRunning   ItemStatus = "running"
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
)

// Item is one source file inside a run. Duplicates are allowed and are
// processed independently, so items are addressed by position, not path.
type Item struct {
	ID          string      `json:"id"`
	InputPath   string      `json:"input_path"`
	OutputPath  string      `json:"output_path,omitempty"` // Set after a successful write
	Status      ItemStatus  `json:"status"`
	FailKind    FailureKind `json:"fail_kind,omitempty"`
	Error       string      `json:"error,omitempty"`
	Warning     string      `json:"warning,omitempty"` // Non-fatal, e.g. delete-after-convert failed
	OutputSize  int64       `json:"output_size,omitempty"`
	Deleted     bool        `json:"deleted,omitempty"` // Original removed after conversion
	StartedAt   time.Time   `json:"started_at,omitempty"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the item reached a terminal state
func (it *Item) IsTerminal() bool {
	return it.Status == ItemSucceeded || it.Status == ItemFailed || it.Status == ItemSkipped
}

// Run is one batch conversion job: an ordered list of source files plus
// the parameters of the conversion. Everything here is immutable after
// construction except the state fields the Queue mutates under its lock
// and the cancel flag.
type Run struct {
	ID              string      `json:"id"`
	Items           []*Item     `json:"items"`
	Destination     Destination `json:"destination"`
	Format          string      `json:"format"`
	Quality         int         `json:"quality"`
	DeleteOriginals bool        `json:"delete_originals"`

	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	SuccessCount int       `json:"success_count"`
	BytesOut     int64     `json:"bytes_out"`
	CreatedAt    time.Time `json:"created_at"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`

	// cancelled is read by the worker at item boundaries and may be set
	// from any goroutine.
	cancelled atomic.Bool
}

// NewRun validates the parameters and builds a pending run.
// It fails with ErrInvalidArgument on an empty item list, a quality
// outside 1-100, or a fixed destination without a directory.
func NewRun(paths []string, dest Destination, format string, quality int, deleteOriginals bool) (*Run, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no input files", ErrInvalidArgument)
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("%w: quality %d outside 1-100", ErrInvalidArgument, quality)
	}
	if dest.Mode == DestFixed && dest.Dir == "" {
		return nil, fmt.Errorf("%w: fixed destination without directory", ErrInvalidArgument)
	}
	if dest.Mode == "" {
		dest = SourceRelative()
	}

	items := make([]*Item, 0, len(paths))
	for _, path := range paths {
		items = append(items, &Item{
			ID:        uuid.NewString(),
			InputPath: path,
			Status:    ItemPending,
		})
	}

	return &Run{
		ID:              uuid.NewString(),
		Items:           items,
		Destination:     dest,
		Format:          format,
		Quality:         quality,
		DeleteOriginals: deleteOriginals,
		Status:          StatusPending,
		CreatedAt:       time.Now(),
	}, nil
}

// RequestCancel asks the run to stop at the next item boundary.
// Idempotent and safe to call concurrently with execution. In-flight
// decode/encode/write work is never interrupted.
func (r *Run) RequestCancel() {
	r.cancelled.Store(true)
}

// CancelRequested reports whether cancellation has been requested.
func (r *Run) CancelRequested() bool {
	return r.cancelled.Load()
}

// IsTerminal returns true if the run is in a terminal state
func (r *Run) IsTerminal() bool {
	return r.Status == StatusComplete || r.Status == StatusFailed || r.Status == StatusCancelled
}

// TotalCount returns the number of items in the run.
func (r *Run) TotalCount() int {
	return len(r.Items)
}

// Copy returns a snapshot safe to hand outside the queue's lock.
func (r *Run) Copy() *Run {
	items := make([]*Item, len(r.Items))
	for i, it := range r.Items {
		dup := *it
		items[i] = &dup
	}
	c := &Run{
		ID:              r.ID,
		Items:           items,
		Destination:     r.Destination,
		Format:          r.Format,
		Quality:         r.Quality,
		DeleteOriginals: r.DeleteOriginals,
		Status:          r.Status,
		Error:           r.Error,
		SuccessCount:    r.SuccessCount,
		BytesOut:        r.BytesOut,
		CreatedAt:       r.CreatedAt,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}
	c.cancelled.Store(r.cancelled.Load())
	return c
}
