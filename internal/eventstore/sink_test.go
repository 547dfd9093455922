package eventstore

import (
	"testing"
	"time"

	"git.home.luguber.info/inful/pressroom/internal/events"
)

func TestSinkRecordsEvents(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	sink := NewSink(store, events.DirEntered)
	ctx := t.Context()
	at := time.UnixMilli(1_700_000_000_000)

	if err := sink.Emit(ctx, events.Event{RunID: testRunID, Type: events.DirEntered, Path: "css", Time: at}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := sink.Emit(ctx, events.Event{
		RunID:  testRunID,
		Type:   events.CompileFinished,
		Path:   "css/site.scss",
		Time:   at,
		Detail: map[string]string{events.DetailCompiler: "sass"},
	}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	stored, err := store.GetByRunID(ctx, testRunID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected skipped type to be dropped, got %d events", len(stored))
	}
	if got := EventPath(stored[0]); got != "css/site.scss" {
		t.Errorf("expected path css/site.scss, got %q", got)
	}
	if stored[0].Metadata()[events.DetailCompiler] != "sass" {
		t.Errorf("expected compiler detail, got %v", stored[0].Metadata())
	}
	if !stored[0].Timestamp().Equal(at) {
		t.Errorf("expected event time to be kept, got %v", stored[0].Timestamp())
	}
}
