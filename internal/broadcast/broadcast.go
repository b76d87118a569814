// Package broadcast delivers area and claim events to connected clients.
// Delivery is best effort: a slow or absent consumer never blocks the engine.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/satoshigo/hunt/pkg/streaming"
)

// Publisher sends an envelope to subscribers.
type Publisher interface {
	Publish(ctx context.Context, env streaming.Envelope) error
}

// Nop discards everything.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, streaming.Envelope) error { return nil }

// Multi fans an envelope out to several publishers and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, env streaming.Envelope) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// marshalEnvelope JSON-encodes an envelope for the wire.
func marshalEnvelope(env streaming.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}
	return data, nil
}

// Config holds outbound relay configuration.
type Config struct {
	URL    string
	Secret string
}

// Relay forwards envelopes to an external fan-out server over WebSocket.
type Relay struct {
	conn *connection
	cfg  Config
}

// NewRelay creates a relay. Init dials the server.
func NewRelay(cfg Config, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (r *Relay) Init() error {
	return r.conn.dial(r.cfg.URL, r.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (r *Relay) Close() error {
	return r.conn.close()
}

// Publish queues env for the write loop (fire-and-forget).
func (r *Relay) Publish(_ context.Context, env streaming.Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	r.conn.send(data)
	return nil
}

// Dropped returns the number of envelopes discarded because the queue was full.
func (r *Relay) Dropped() uint64 {
	return r.conn.dropped.Load()
}
