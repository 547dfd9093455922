// Package eventstore keeps a durable history of export runs: every progress
// event is appended to SQLite, and a projection folds them into per-run
// summaries.
package eventstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"git.home.luguber.info/inful/pressroom/internal/events"
)

const (
	runStatusRunning = "running"
	runStatusSuccess = "success"
	runStatusFailed  = "failed"
)

// RunSummary is a read model summarizing a finished or in-progress run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Status      string        `json:"status"` // "running", "success", "failed", "aborted"
	InputDir    string        `json:"input_dir,omitempty"`
	OutputDir   string        `json:"output_dir,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Files       int           `json:"files"`
	Compiled    int           `json:"compiled"`
	Minified    int           `json:"minified"`
	Reused      int           `json:"reused"`
	Copied      int           `json:"copied"`
	Removed     int           `json:"removed"`
	Error       string        `json:"error,omitempty"`
}

// RunHistoryProjection maintains an in-memory view of run history,
// reconstructed from events stored in the event store.
type RunHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	runs     map[string]*RunSummary // runID -> summary
	history  []*RunSummary          // ordered by start time, newest first
	maxSize  int
	lastSync time.Time
}

// NewRunHistoryProjection creates a new projection backed by the given store.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		history: make([]*RunSummary, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	stored, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*RunSummary)
	p.history = make([]*RunSummary, 0, p.maxSize)
	for _, event := range stored {
		p.applyEventLocked(event)
	}
	p.sortHistoryLocked()
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()

	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event and updates the projection.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *RunHistoryProjection) applyEventLocked(event Event) {
	runID := event.RunID()
	if runID == "" {
		return
	}

	summary, exists := p.runs[runID]
	if !exists {
		summary = &RunSummary{
			RunID:     runID,
			Status:    runStatusRunning,
			StartedAt: event.Timestamp(),
		}
		p.runs[runID] = summary
	}
	meta := event.Metadata()

	switch events.Type(event.Type()) {
	case events.RunStarted:
		summary.StartedAt = event.Timestamp()
		summary.Status = runStatusRunning
		summary.InputDir = meta[events.DetailInput]
		summary.OutputDir = meta[events.DetailOutDir]

	case events.CompileFinished:
		if meta[events.DetailAction] == "minified" {
			summary.Minified++
		} else {
			summary.Compiled++
		}

	case events.CompileReused:
		summary.Reused++

	case events.FileCopied:
		summary.Copied++

	case events.FileRemoved:
		summary.Removed++

	case events.RunFinished:
		p.completeLocked(summary, event.Timestamp(), meta, runStatusSuccess)
		if n, err := strconv.Atoi(meta[events.DetailFiles]); err == nil {
			summary.Files = n
		}

	case events.RunFailed:
		p.completeLocked(summary, event.Timestamp(), meta, runStatusFailed)
		summary.Error = meta[events.DetailError]
	}
}

func (p *RunHistoryProjection) completeLocked(summary *RunSummary, at time.Time, meta map[string]string, status string) {
	summary.CompletedAt = &at
	summary.Duration = at.Sub(summary.StartedAt)
	if ms, err := strconv.ParseInt(meta[events.DetailDuration], 10, 64); err == nil {
		summary.Duration = time.Duration(ms) * time.Millisecond
	}
	summary.Status = status
	if outcome := meta[events.DetailOutcome]; outcome != "" {
		summary.Status = outcome
	}
	p.addToHistoryLocked(summary)
}

// addToHistoryLocked adds a finished run to history if not already present.
func (p *RunHistoryProjection) addToHistoryLocked(summary *RunSummary) {
	for _, h := range p.history {
		if h.RunID == summary.RunID {
			return
		}
	}

	p.history = append([]*RunSummary{summary}, p.history...)
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()
}

// pruneRunsLocked removes finished runs not present in the bounded history.
// Caller must hold p.mu (write lock).
func (p *RunHistoryProjection) pruneRunsLocked() {
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		keep[h.RunID] = struct{}{}
	}

	for id, summary := range p.runs {
		if summary.Status == runStatusRunning {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.runs, id)
		}
	}
}

// sortHistoryLocked sorts history by start time, newest first.
func (p *RunHistoryProjection) sortHistoryLocked() {
	// insertion sort, history is small
	for i := 1; i < len(p.history); i++ {
		for j := i; j > 0 && p.history[j].StartedAt.After(p.history[j-1].StartedAt); j-- {
			p.history[j], p.history[j-1] = p.history[j-1], p.history[j]
		}
	}
}

// GetHistory returns the run history, newest first.
func (p *RunHistoryProjection) GetHistory() []*RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*RunSummary, len(p.history))
	copy(result, p.history)
	return result
}

// GetRun returns the summary for a specific run.
func (p *RunHistoryProjection) GetRun(runID string) (*RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, exists := p.runs[runID]
	if !exists {
		return nil, false
	}
	cp := *summary
	return &cp, true
}

// GetActiveRun returns a currently running run if any.
func (p *RunHistoryProjection) GetActiveRun() *RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, summary := range p.runs {
		if summary.Status == runStatusRunning {
			cp := *summary
			return &cp
		}
	}
	return nil
}

// GetLastCompletedRun returns the most recently finished run, successful or not.
func (p *RunHistoryProjection) GetLastCompletedRun() *RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.history) == 0 {
		return nil
	}
	cp := *p.history[0]
	return &cp
}

// LastSyncTime returns when the projection was last synchronized.
func (p *RunHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
