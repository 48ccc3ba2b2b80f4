package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/gwlsn/rawray/internal/logger"
)

// Store defines the persistence interface for run history.
// This interface is implemented by internal/store.SQLiteStore.
type Store interface {
	SaveRun(run *Run) error
	GetRun(id string) (*Run, error)
	GetAllRuns() ([]*Run, error)
	DeleteRun(id string) error
	MarkInterrupted() (int, error)
	AddConverted(files int, bytes int64) error
	Close() error
}

// StoreWithStats extends Store with session/lifetime counters.
type StoreWithStats interface {
	Store
	SessionLifetimeStats() (sessionFiles, lifetimeFiles, sessionBytes, lifetimeBytes int64, err error)
}

// Queue holds every run the service knows about, in submission order,
// and fans state changes out to subscribers. All run and item mutation
// goes through the Queue so persistence and events stay consistent.
type Queue struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	order []string // Run IDs in submission order
	store Store    // Persistence store (nil = in-memory only)

	subsMu      sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewQueue creates a new in-memory run queue (for testing).
// Use NewQueueWithStore for production use with persistence.
func NewQueue() *Queue {
	return &Queue{
		runs:        make(map[string]*Run),
		order:       make([]string, 0),
		subscribers: make(map[chan Event]struct{}),
	}
}

// NewQueueWithStore creates a run queue backed by a persistent store.
// Existing history is loaded into the in-memory cache.
func NewQueueWithStore(store Store) (*Queue, error) {
	q := &Queue{
		runs:        make(map[string]*Run),
		order:       make([]string, 0),
		store:       store,
		subscribers: make(map[chan Event]struct{}),
	}

	if store != nil {
		runs, err := store.GetAllRuns()
		if err != nil {
			return nil, fmt.Errorf("load runs from store: %w", err)
		}
		for _, run := range runs {
			q.runs[run.ID] = run
			q.order = append(q.order, run.ID)
		}
	}

	return q, nil
}

// persist saves a run to the store (if configured).
// Called with lock held.
func (q *Queue) persist(run *Run) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveRun(run); err != nil {
		logger.Warn("Failed to persist run", "run_id", run.ID, "error", err)
	}
}

// Add enqueues a validated run.
func (q *Queue) Add(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.runs[run.ID]; exists {
		return fmt.Errorf("run already queued: %s", run.ID)
	}

	q.runs[run.ID] = run
	q.order = append(q.order, run.ID)
	q.persist(run)

	q.broadcast(Event{Type: EventRunQueued, RunID: run.ID, TotalCount: run.TotalCount()})
	return nil
}

// Get returns a snapshot of a run by ID, or nil if unknown.
func (q *Queue) Get(id string) *Run {
	q.mu.RLock()
	defer q.mu.RUnlock()

	run, ok := q.runs[id]
	if !ok {
		return nil
	}
	return run.Copy()
}

// GetAll returns snapshots of all runs in submission order.
func (q *Queue) GetAll() []*Run {
	q.mu.RLock()
	defer q.mu.RUnlock()

	runs := make([]*Run, 0, len(q.order))
	for _, id := range q.order {
		if run, ok := q.runs[id]; ok {
			runs = append(runs, run.Copy())
		}
	}
	return runs
}

// GetNext returns the next pending run (for the worker to pick up).
// The worker gets the live run so the cancel flag stays shared; all
// state mutation still goes through Queue methods.
func (q *Queue) GetNext() *Run {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, id := range q.order {
		if run, ok := q.runs[id]; ok && run.Status == StatusPending {
			return run
		}
	}
	return nil
}

// RequestCancel sets the cancel flag on a run. The runner honors it at
// the next item boundary; a pending run is drained with skip events once
// the worker reaches it.
func (q *Queue) RequestCancel(id string) error {
	q.mu.RLock()
	run, ok := q.runs[id]
	q.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if run.IsTerminal() {
		return fmt.Errorf("run already in terminal state: %s", run.Status)
	}

	run.RequestCancel()
	return nil
}

// StartRun marks a pending run as running.
func (q *Queue) StartRun(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	run, ok := q.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if run.Status != StatusPending {
		return fmt.Errorf("run not pending: %s", run.Status)
	}

	run.Status = StatusRunning
	run.StartedAt = time.Now()
	q.persist(run)

	q.broadcast(Event{Type: EventRunStarted, RunID: run.ID, TotalCount: run.TotalCount()})
	return nil
}

// StartItem marks an item as running.
func (q *Queue) StartItem(id string, idx int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	run, item, ok := q.itemLocked(id, idx)
	if !ok {
		return
	}

	item.Status = ItemRunning
	item.StartedAt = time.Now()
	q.persist(run)

	q.broadcast(Event{Type: EventItemStarted, RunID: run.ID, Path: item.InputPath})
}

// CompleteItem marks an item as succeeded.
func (q *Queue) CompleteItem(id string, idx int, outputPath string, outputSize int64, deleted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	run, item, ok := q.itemLocked(id, idx)
	if !ok {
		return
	}

	item.Status = ItemSucceeded
	item.OutputPath = outputPath
	item.OutputSize = outputSize
	item.Deleted = deleted
	item.CompletedAt = time.Now()
	run.SuccessCount++
	run.BytesOut += outputSize
	q.persist(run)

	q.broadcast(Event{
		Type:       EventItemSucceeded,
		RunID:      run.ID,
		Path:       item.InputPath,
		OutputPath: outputPath,
	})
}

// FailItem marks an item as failed with the pipeline stage and reason.
// Item failures never abort the batch.
func (q *Queue) FailItem(id string, idx int, kind FailureKind, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	run, item, ok := q.itemLocked(id, idx)
	if !ok {
		return
	}

	item.Status = ItemFailed
	item.FailKind = kind
	item.Error = reason
	item.CompletedAt = time.Now()
	q.persist(run)

	q.broadcast(Event{
		Type:   EventItemFailed,
		RunID:  run.ID,
		Path:   item.InputPath,
		Kind:   kind,
		Reason: reason,
	})
}

// SkipItem marks an item as skipped due to cancellation. Skipped items
// are never decoded.
func (q *Queue) SkipItem(id string, idx int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	run, item, ok := q.itemLocked(id, idx)
	if !ok {
		return
	}

	item.Status = ItemSkipped
	item.CompletedAt = time.Now()
	q.persist(run)

	q.broadcast(Event{Type: EventItemSkipped, RunID: run.ID, Path: item.InputPath})
}

// WarnDelete records a failed delete-after-convert on an otherwise
// successful item. The item's success status is unaffected.
func (q *Queue) WarnDelete(id string, idx int, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	run, item, ok := q.itemLocked(id, idx)
	if !ok {
		return
	}

	item.Warning = reason
	q.persist(run)

	q.broadcast(Event{
		Type:   EventDeleteWarning,
		RunID:  run.ID,
		Path:   item.InputPath,
		Reason: reason,
	})
}

// Progress broadcasts the run's completion percentage. Not persisted;
// the per-item states carry the durable truth.
func (q *Queue) Progress(id string, percent int) {
	q.broadcast(Event{Type: EventProgress, RunID: id, Percent: percent})
}

// FinishRun puts a run into a terminal state. errMsg is set only for
// run-level fatal errors; item failures and cancellation still finish
// with success=true counts.
func (q *Queue) FinishRun(id string, status Status, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	run, ok := q.runs[id]
	if !ok {
		return
	}

	run.Status = status
	run.Error = errMsg
	run.CompletedAt = time.Now()
	q.persist(run)

	if q.store != nil && run.SuccessCount > 0 {
		if err := q.store.AddConverted(run.SuccessCount, run.BytesOut); err != nil {
			logger.Warn("Failed to update conversion counters", "error", err)
		}
	}

	q.broadcast(Event{
		Type:         EventRunFinished,
		RunID:        run.ID,
		Success:      errMsg == "",
		Reason:       errMsg,
		SuccessCount: run.SuccessCount,
		TotalCount:   run.TotalCount(),
	})
}

// Remove deletes a terminal run from history.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	run, ok := q.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if !run.IsTerminal() {
		return fmt.Errorf("run still active: %s", run.Status)
	}

	if q.store != nil {
		if err := q.store.DeleteRun(id); err != nil {
			logger.Warn("Failed to delete run from store", "run_id", id, "error", err)
		}
	}
	delete(q.runs, id)

	newOrder := make([]string, 0, len(q.order))
	for _, rid := range q.order {
		if rid != id {
			newOrder = append(newOrder, rid)
		}
	}
	q.order = newOrder
	return nil
}

// itemLocked resolves a run and item index. Called with lock held.
func (q *Queue) itemLocked(id string, idx int) (*Run, *Item, bool) {
	run, ok := q.runs[id]
	if !ok || idx < 0 || idx >= len(run.Items) {
		return nil, nil, false
	}
	return run, run.Items[idx], true
}

// Subscribe returns a channel that receives run events. The buffer is
// generous; a subscriber that falls that far behind loses events rather
// than stalling the worker.
func (q *Queue) Subscribe() chan Event {
	ch := make(chan Event, 256)

	q.subsMu.Lock()
	q.subscribers[ch] = struct{}{}
	q.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription
func (q *Queue) Unsubscribe(ch chan Event) {
	q.subsMu.Lock()
	delete(q.subscribers, ch)
	q.subsMu.Unlock()

	close(ch)
}

// broadcast sends an event to all subscribers
func (q *Queue) broadcast(event Event) {
	q.subsMu.RLock()
	defer q.subsMu.RUnlock()

	for ch := range q.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}

// Stats summarizes the queue plus the store's session/lifetime counters.
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Complete  int `json:"complete"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`

	ItemsSucceeded int `json:"items_succeeded"`
	ItemsFailed    int `json:"items_failed"`
	ItemsSkipped   int `json:"items_skipped"`

	SessionConverted  int64 `json:"session_converted"`
	LifetimeConverted int64 `json:"lifetime_converted"`
	SessionBytes      int64 `json:"session_bytes"`
	LifetimeBytes     int64 `json:"lifetime_bytes"`
}

func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var stats Stats
	for _, run := range q.runs {
		stats.Total++
		switch run.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusComplete:
			stats.Complete++
		case StatusFailed:
			stats.Failed++
		case StatusCancelled:
			stats.Cancelled++
		}
		for _, item := range run.Items {
			switch item.Status {
			case ItemSucceeded:
				stats.ItemsSucceeded++
			case ItemFailed:
				stats.ItemsFailed++
			case ItemSkipped:
				stats.ItemsSkipped++
			}
		}
	}

	if sws, ok := q.store.(StoreWithStats); ok {
		sf, lf, sb, lb, err := sws.SessionLifetimeStats()
		if err == nil {
			stats.SessionConverted = sf
			stats.LifetimeConverted = lf
			stats.SessionBytes = sb
			stats.LifetimeBytes = lb
		}
	}

	return stats
}
