package eventstore

import (
	"context"
	"encoding/json"

	"git.home.luguber.info/inful/pressroom/internal/events"
)

// Sink records export progress events in a Store. The event path goes into
// the payload, the detail map into the metadata column.
type Sink struct {
	store Store
	skip  map[events.Type]struct{}
}

// NewSink returns a Sink appending to store. Events of the skipped types are
// not recorded.
func NewSink(store Store, skip ...events.Type) *Sink {
	s := &Sink{store: store, skip: make(map[events.Type]struct{}, len(skip))}
	for _, t := range skip {
		s.skip[t] = struct{}{}
	}
	return s
}

type payload struct {
	Path string `json:"path,omitempty"`
}

// Emit implements events.Sink.
func (s *Sink) Emit(ctx context.Context, e events.Event) error {
	if _, ok := s.skip[e.Type]; ok {
		return nil
	}
	data, err := json.Marshal(payload{Path: e.Path})
	if err != nil {
		return wrap(ErrMarshalPayloadFailed, err)
	}
	return s.store.Append(ctx, e.RunID, string(e.Type), e.Time, data, e.Detail)
}

// EventPath returns the path recorded for a stored event.
func EventPath(e Event) string {
	var p payload
	if err := json.Unmarshal(e.Payload(), &p); err != nil {
		return ""
	}
	return p.Path
}
