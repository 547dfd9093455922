package events

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	ferrors "git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

// Bus is a typed in-process publish/subscribe hub. Subscriptions are keyed by
// Go type; subscribing to an interface type receives every published value
// implementing it. It is not durable: history lives in internal/eventstore.
type Bus struct {
	mu     sync.RWMutex
	subs   map[reflect.Type]map[uint64]*subscription
	nextID atomic.Uint64
	closed atomic.Bool
	once   sync.Once
}

type subscription struct {
	deliver func(ctx context.Context, v any, block bool) (bool, error)
	close   func()
}

func NewBus() *Bus {
	return &Bus{subs: make(map[reflect.Type]map[uint64]*subscription)}
}

// Subscribe registers a channel receiving published values of type T. The
// returned function unsubscribes and closes the channel.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	key := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	var closeOnce sync.Once
	closeCh := func() { closeOnce.Do(func() { close(ch) }) }

	if b.closed.Load() {
		closeCh()
		return ch, func() {}
	}

	id := b.nextID.Add(1)
	sub := &subscription{
		deliver: func(ctx context.Context, v any, block bool) (bool, error) {
			typed, ok := v.(T)
			if !ok {
				return false, ferrors.InternalError("event type mismatch").
					WithContext("expected", key.String()).
					WithContext("actual", reflect.TypeOf(v).String()).
					Build()
			}
			if !block {
				select {
				case ch <- typed:
					return true, nil
				default:
					return false, nil
				}
			}
			select {
			case ch <- typed:
				return true, nil
			case <-ctx.Done():
				return false, ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "event publish canceled").
					WithContext("event_type", key.String()).
					Build()
			}
		},
		close: closeCh,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		closeCh()
		return ch, func() {}
	}
	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]*subscription)
	}
	b.subs[key][id] = sub

	var unsubOnce sync.Once
	return ch, func() {
		unsubOnce.Do(func() {
			b.mu.Lock()
			if m, ok := b.subs[key]; ok {
				delete(m, id)
				if len(m) == 0 {
					delete(b.subs, key)
				}
			}
			b.mu.Unlock()
			closeCh()
		})
	}
}

// SubscriberCount returns the number of subscriptions for exactly type T.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeFor[T]()])
}

func (b *Bus) targets(v any) []*subscription {
	vt := reflect.TypeOf(v)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*subscription
	for t, m := range b.subs {
		if t != vt && (t.Kind() != reflect.Interface || !vt.Implements(t)) {
			continue
		}
		for _, s := range m {
			out = append(out, s)
		}
	}
	return out
}

func (b *Bus) check(ctx context.Context, v any) error {
	if v == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}
	if ctx == nil {
		return ferrors.ValidationError("context cannot be nil").Build()
	}
	if b.closed.Load() {
		return ferrors.NewError(ferrors.CategoryRuntime, "event bus is closed").Build()
	}
	return nil
}

// Publish delivers v to every matching subscription, blocking until each has
// accepted it or ctx is done.
func (b *Bus) Publish(ctx context.Context, v any) error {
	if err := b.check(ctx, v); err != nil {
		return err
	}
	for _, s := range b.targets(v) {
		if _, err := s.deliver(ctx, v, true); err != nil {
			return err
		}
	}
	return nil
}

// TryPublish delivers v to every subscription with buffer space and returns
// how many subscriptions dropped it.
func (b *Bus) TryPublish(ctx context.Context, v any) (dropped int, err error) {
	if err := b.check(ctx, v); err != nil {
		return 0, err
	}
	for _, s := range b.targets(v) {
		ok, err := s.deliver(ctx, v, false)
		if err != nil {
			return dropped, err
		}
		if !ok {
			dropped++
		}
	}
	return dropped, nil
}

// Close closes the bus and every subscription channel. Publishing afterwards fails.
func (b *Bus) Close() {
	b.once.Do(func() {
		b.closed.Store(true)
		b.mu.Lock()
		var all []*subscription
		for _, m := range b.subs {
			for _, s := range m {
				all = append(all, s)
			}
		}
		b.subs = make(map[reflect.Type]map[uint64]*subscription)
		b.mu.Unlock()
		for _, s := range all {
			s.close()
		}
	})
}
