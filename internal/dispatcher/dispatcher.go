// Package dispatcher routes engine events (area created, funding confirmed,
// item collected) to their side-effect handlers. Handlers registered with
// Buffered run on their own goroutine so the engine never waits for them.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/satoshigo/hunt/internal/dispatcher"

// Queued is the result of a Dispatch that was handed to a buffered handler.
const Queued = "queued"

var (
	// ErrClosed is returned by Dispatch after Shutdown.
	ErrClosed = errors.New("dispatcher closed")
	// ErrUnknownCommand is returned when no handler is registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a non-blocking queue has no room.
	ErrQueueFull = errors.New("queue full")
)

// Event is a single engine notification.
type Event struct {
	Command   string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is the subset of a structured logger the dispatcher needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	buffer   int
	blocking bool
	logged   bool
}

// Buffered runs the handler on its own goroutine behind a queue of size events.
func Buffered(size int) Option {
	return func(o *options) { o.buffer = size }
}

// Blocking makes Dispatch wait for room in a full queue instead of dropping.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs each event at debug and each failure at error.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

type instruments struct {
	depth     metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

func newInstruments(m metric.Meter) (instruments, error) {
	var (
		in   instruments
		errs [4]error
	)
	in.depth, errs[0] = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a handler queue"))
	in.processed, errs[1] = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Events handled by buffered handlers"))
	in.dropped, errs[2] = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events discarded because the queue was full"))
	in.failed, errs[3] = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Buffered events whose handler returned an error"))
	if err := errors.Join(errs[:]...); err != nil {
		return instruments{}, fmt.Errorf("create dispatcher instruments: %w", err)
	}
	return in, nil
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger
	metrics  instruments

	mu     sync.RWMutex
	queues map[string]chan Event
	closed bool
	wg     sync.WaitGroup

	droppedTotal atomic.Uint64
}

// New returns an empty dispatcher. Metrics go to the global OTel meter
// provider, which is a no-op unless one was installed.
func New(logger Logger) (*Dispatcher, error) {
	m := otel.Meter(instrumentationName)
	in, err := newInstruments(m)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
		metrics:  in,
		queues:   make(map[string]chan Event),
	}
	if _, err := m.RegisterCallback(d.observeDepth, in.depth); err != nil {
		return nil, fmt.Errorf("register queue depth callback: %w", err)
	}
	return d, nil
}

func (d *Dispatcher) observeDepth(_ context.Context, o metric.Observer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cmd, q := range d.queues {
		o.ObserveInt64(d.metrics.depth, int64(len(q)), metric.WithAttributes(attribute.String("command", cmd)))
	}
	return nil
}

// Register installs h for command, replacing any previous handler. All
// handlers must be registered before the first Dispatch.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logged {
		h = d.logged(command, h)
	}
	if o.buffer > 0 {
		h = d.enqueue(command, o.buffer, o.blocking, h)
	}
	d.handlers[command] = h
}

// Dispatch routes e to its handler, stamping it with the current time when
// the caller left Timestamp empty.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler reports whether command has a handler.
func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

// Dropped returns how many events were discarded because a queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.droppedTotal.Load()
}

// Shutdown refuses new events and waits until every queue is drained or ctx
// is done. It may be called more than once.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue starts the consumer for command and returns the producer side.
// Producers hold the read lock while sending so Shutdown cannot close the
// queue under them.
func (d *Dispatcher) enqueue(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	q := make(chan Event, size)
	attrs := metric.WithAttributes(attribute.String("command", command))

	d.mu.Lock()
	d.queues[command] = q
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx := context.Background()
		for e := range q {
			if _, err := h(e); err != nil {
				d.metrics.failed.Add(ctx, 1, attrs)
			}
			d.metrics.processed.Add(ctx, 1, attrs)
		}
	}()

	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrClosed
		}
		if blocking {
			q <- e
			return Queued, nil
		}
		select {
		case q <- e:
			return Queued, nil
		default:
			d.metrics.dropped.Add(context.Background(), 1, attrs)
			d.droppedTotal.Add(1)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("Handling event", "command", command, "payload", fmt.Sprintf("%T", e.Payload))

		res, err := h(e)
		if err != nil {
			d.logger.Error("Event failed", "command", command, "duration", time.Since(start), "error", err)
			return res, err
		}
		d.logger.Debug("Event handled", "command", command, "duration", time.Since(start))
		return res, nil
	}
}
