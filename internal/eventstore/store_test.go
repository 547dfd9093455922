package eventstore

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

const testRunID = "run-123"

func TestEventStoreAppendAndRetrieve(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	at := time.UnixMilli(1_700_000_000_123)
	payload := []byte(`{"path":"b.scss"}`)
	metadata := map[string]string{"key": "value"}

	if err := store.Append(ctx, testRunID, "compile.finished", at, payload, metadata); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	events, err := store.GetByRunID(ctx, testRunID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.RunID() != testRunID {
		t.Errorf("expected run_id %s, got %s", testRunID, event.RunID())
	}
	if event.Type() != "compile.finished" {
		t.Errorf("expected event_type compile.finished, got %s", event.Type())
	}
	if !event.Timestamp().Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, event.Timestamp())
	}
	if !bytes.Equal(event.Payload(), payload) {
		t.Errorf("expected payload %s, got %s", payload, event.Payload())
	}
	if event.Metadata()["key"] != "value" {
		t.Errorf("expected metadata key=value, got %v", event.Metadata())
	}
}

func TestEventStoreGetRange(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	base := time.Now()
	for i := range 3 {
		if err := store.Append(ctx, "run-1", "file.copied", base.Add(time.Duration(i)*time.Minute), nil, nil); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}
	if err := store.Append(ctx, "run-0", "file.copied", base.Add(-48*time.Hour), nil, nil); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	events, err := store.GetRange(ctx, base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to get range: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("expected 3 events, got %d", len(events))
	}
}

func TestEventStoreMultipleRuns(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	_ = store.Append(ctx, "run-1", "run.started", time.Time{}, nil, nil)
	_ = store.Append(ctx, "run-2", "run.started", time.Time{}, nil, nil)
	_ = store.Append(ctx, "run-1", "run.finished", time.Time{}, nil, nil)

	events, err := store.GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for run-1, got %d", len(events))
	}
	if events[0].Type() != "run.started" || events[1].Type() != "run.finished" {
		t.Errorf("events out of order: %s, %s", events[0].Type(), events[1].Type())
	}

	events, err = store.GetByRunID(ctx, "run-2")
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event for run-2, got %d", len(events))
	}
}

func TestEventStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Append(t.Context(), testRunID, "run.started", time.Time{}, nil, nil); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	events, err := reopened.GetByRunID(t.Context(), testRunID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event after reopen, got %d", len(events))
	}
}

func TestEventStoreOpenFailure(t *testing.T) {
	_, err := NewSQLiteStore(filepath.Join(t.TempDir(), "missing", "history.db"))
	if err == nil {
		t.Fatal("expected an error for a database in a missing directory")
	}
	if !errors.Is(err, ErrInitializeSchemaFailed) {
		t.Errorf("expected ErrInitializeSchemaFailed, got %v", err)
	}
}

func TestEventStorePruneRemovesWholeRuns(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	base := time.UnixMilli(1_700_000_000_000)
	appendAt := func(runID, eventType string, at time.Time) {
		t.Helper()
		if err := store.Append(ctx, runID, eventType, at, nil, nil); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}
	appendAt("old", "run.started", base)
	appendAt("old", "run.finished", base.Add(time.Minute))
	// straddles the cutoff: started before, finished after
	appendAt("straddle", "run.started", base.Add(50*time.Minute))
	appendAt("straddle", "run.finished", base.Add(2*time.Hour))
	appendAt("new", "run.started", base.Add(3*time.Hour))

	n, err := store.Prune(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events pruned, got %d", n)
	}

	for runID, want := range map[string]int{"old": 0, "straddle": 2, "new": 1} {
		events, err := store.GetByRunID(ctx, runID)
		if err != nil {
			t.Fatalf("failed to get events: %v", err)
		}
		if len(events) != want {
			t.Errorf("run %s: expected %d events, got %d", runID, want, len(events))
		}
	}
}
