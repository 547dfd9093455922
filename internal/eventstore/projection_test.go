package eventstore

import (
	"context"
	"testing"
	"time"

	"git.home.luguber.info/inful/pressroom/internal/events"
)

func ev(runID string, t events.Type, at time.Time, meta map[string]string) Event {
	return &BaseEvent{EventRunID: runID, EventType: string(t), EventTimestamp: at, EventMetadata: meta}
}

func TestRunHistoryProjection_ApplyEvents(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	projection := NewRunHistoryProjection(store, 10)
	start := time.Now()
	runID := "run-apply"

	projection.Apply(ev(runID, events.RunStarted, start, map[string]string{
		events.DetailInput:  "/src",
		events.DetailOutDir: "/out",
	}))
	summary, exists := projection.GetRun(runID)
	if !exists {
		t.Fatal("Expected run to exist")
	}
	if summary.Status != "running" {
		t.Errorf("Expected status 'running', got %q", summary.Status)
	}
	if summary.InputDir != "/src" || summary.OutputDir != "/out" {
		t.Errorf("Unexpected dirs %q -> %q", summary.InputDir, summary.OutputDir)
	}

	projection.Apply(ev(runID, events.CompileFinished, start, nil))
	projection.Apply(ev(runID, events.CompileFinished, start, map[string]string{events.DetailAction: "minified"}))
	projection.Apply(ev(runID, events.CompileReused, start, nil))
	projection.Apply(ev(runID, events.FileCopied, start, nil))
	projection.Apply(ev(runID, events.FileCopied, start, nil))
	projection.Apply(ev(runID, events.FileRemoved, start, nil))
	projection.Apply(ev(runID, events.RunFinished, start.Add(2*time.Second), map[string]string{
		events.DetailOutcome:  "success",
		events.DetailFiles:    "5",
		events.DetailDuration: "1500",
	}))

	summary, _ = projection.GetRun(runID)
	if summary.Status != "success" {
		t.Errorf("Expected status 'success', got %q", summary.Status)
	}
	if summary.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}
	if summary.Compiled != 1 || summary.Minified != 1 || summary.Reused != 1 || summary.Copied != 2 || summary.Removed != 1 {
		t.Errorf("Unexpected counts %+v", summary)
	}
	if summary.Files != 5 {
		t.Errorf("Expected 5 files, got %d", summary.Files)
	}
	if summary.Duration != 1500*time.Millisecond {
		t.Errorf("Expected duration 1.5s, got %v", summary.Duration)
	}

	history := projection.GetHistory()
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
	if history[0].RunID != runID {
		t.Errorf("Expected run ID %q, got %q", runID, history[0].RunID)
	}
}

func TestRunHistoryProjection_RunFailed(t *testing.T) {
	projection := NewRunHistoryProjection(nil, 10)
	now := time.Now()

	projection.Apply(ev("run-failed", events.RunStarted, now, nil))
	projection.Apply(ev("run-failed", events.RunFailed, now.Add(time.Second), map[string]string{
		events.DetailOutcome: "failed",
		events.DetailError:   "[compile] compilation failed",
	}))
	projection.Apply(ev("run-aborted", events.RunStarted, now, nil))
	projection.Apply(ev("run-aborted", events.RunFailed, now.Add(time.Second), map[string]string{
		events.DetailOutcome: "aborted",
	}))

	summary, exists := projection.GetRun("run-failed")
	if !exists {
		t.Fatal("Expected run to exist")
	}
	if summary.Status != "failed" {
		t.Errorf("Expected status 'failed', got %q", summary.Status)
	}
	if summary.Error != "[compile] compilation failed" {
		t.Errorf("Unexpected error message %q", summary.Error)
	}
	if summary.Duration != time.Second {
		t.Errorf("Expected duration 1s, got %v", summary.Duration)
	}

	summary, _ = projection.GetRun("run-aborted")
	if summary.Status != "aborted" {
		t.Errorf("Expected status 'aborted', got %q", summary.Status)
	}
}

func TestRunHistoryProjection_Rebuild(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	sink := NewSink(store)
	base := time.Now().Add(-time.Minute)
	for i, e := range []events.Event{
		{RunID: "run-old", Type: events.RunStarted, Time: base},
		{RunID: "run-old", Type: events.RunFinished, Time: base.Add(time.Second), Detail: map[string]string{events.DetailOutcome: "success"}},
		{RunID: "run-new", Type: events.RunStarted, Time: base.Add(10 * time.Second)},
		{RunID: "run-new", Type: events.CompileFinished, Path: "b.scss", Time: base.Add(11 * time.Second)},
		{RunID: "run-new", Type: events.RunFinished, Time: base.Add(12 * time.Second), Detail: map[string]string{events.DetailOutcome: "success"}},
	} {
		if err := sink.Emit(ctx, e); err != nil {
			t.Fatalf("Failed to emit event %d: %v", i, err)
		}
	}

	projection := NewRunHistoryProjection(store, 10)
	if err := projection.Rebuild(ctx); err != nil {
		t.Fatalf("Failed to rebuild: %v", err)
	}

	history := projection.GetHistory()
	if len(history) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(history))
	}
	if history[0].RunID != "run-new" {
		t.Errorf("Expected newest run first, got %q", history[0].RunID)
	}
	if history[0].Compiled != 1 {
		t.Errorf("Expected 1 compiled file, got %d", history[0].Compiled)
	}
	if last := projection.GetLastCompletedRun(); last == nil || last.RunID != "run-new" {
		t.Errorf("Unexpected last completed run %+v", last)
	}
	if projection.LastSyncTime().IsZero() {
		t.Error("Expected last sync time to be set")
	}
}

func TestRunHistoryProjection_HistoryLimit(t *testing.T) {
	projection := NewRunHistoryProjection(nil, 3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		runID := "run-" + string(rune('a'+i))
		at := now.Add(time.Duration(i) * time.Second)
		projection.Apply(ev(runID, events.RunStarted, at, nil))
		projection.Apply(ev(runID, events.RunFinished, at, nil))
	}

	history := projection.GetHistory()
	if len(history) != 3 {
		t.Errorf("Expected history length 3, got %d", len(history))
	}
	if _, ok := projection.GetRun("run-a"); ok {
		t.Error("Expected oldest run to be pruned")
	}
}

func TestRunHistoryProjection_GetActiveRun(t *testing.T) {
	projection := NewRunHistoryProjection(nil, 10)

	if active := projection.GetActiveRun(); active != nil {
		t.Error("Expected no active run initially")
	}

	projection.Apply(ev("active-run", events.RunStarted, time.Now(), nil))
	active := projection.GetActiveRun()
	if active == nil {
		t.Fatal("Expected active run")
	}
	if active.RunID != "active-run" {
		t.Errorf("Expected run ID 'active-run', got %q", active.RunID)
	}

	projection.Apply(ev("active-run", events.RunFinished, time.Now(), nil))
	if active := projection.GetActiveRun(); active != nil {
		t.Error("Expected no active run after completion")
	}
}
