// Package natsink publishes export progress events to NATS. Each event is
// sent as JSON on "<subject>.<event type>", so subscribers can filter with
// wildcards such as "pressroom.events.run.*".
package natsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/pressroom/internal/events"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "pressroom.events"

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Sink implements events.Sink on top of a Publisher.
type Sink struct {
	pub     Publisher
	subject string
}

// New returns a Sink publishing under subject.
func New(pub Publisher, subject string) *Sink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Sink{pub: pub, subject: subject}
}

// Subject returns the subject an event of type t is published on.
func (s *Sink) Subject(t events.Type) string {
	return s.subject + "." + string(t)
}

// Emit implements events.Sink.
func (s *Sink) Emit(_ context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.pub.Publish(s.Subject(e.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Conn is a Sink that owns its NATS connection.
type Conn struct {
	*Sink
	nc *nats.Conn
}

// Connect dials url and returns a Sink publishing on subject.
func Connect(url, subject string, opts ...nats.Option) (*Conn, error) {
	opts = append([]nats.Option{
		nats.Name("pressroom"),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
	}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS event sink connected", slog.String("url", url), slog.String("subject", subject))
	return &Conn{Sink: New(nc, subject), nc: nc}, nil
}

// Close flushes pending messages and closes the connection.
func (c *Conn) Close() error {
	if c == nil || c.nc == nil {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}
