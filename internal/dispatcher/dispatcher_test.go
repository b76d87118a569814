package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshigo/hunt/pkg/core"
)

type logLine struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level, msg})
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	for i, ln := range l.lines {
		out[i] = ln.level
	}
	return out
}

func newDispatcher(t *testing.T) (*Dispatcher, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})
	return d, logger
}

// gate blocks a buffered handler until released and signals the first entry.
type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) handler(Event) (any, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return nil, nil
}

func TestDispatch_Synchronous(t *testing.T) {
	d, _ := newDispatcher(t)

	var got Event
	d.Register(core.CmdItemCollected, func(e Event) (any, error) {
		got = e
		return "collected", nil
	})

	res, err := d.Dispatch(Event{Command: core.CmdItemCollected, Payload: core.ItemCollected{GameID: "g1", PlayerID: "p1"}})
	require.NoError(t, err)
	assert.Equal(t, "collected", res)
	assert.Equal(t, "p1", got.Payload.(core.ItemCollected).PlayerID)
	assert.False(t, got.Timestamp.IsZero())

	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = d.Dispatch(Event{Command: core.CmdItemCollected, Timestamp: ts})
	require.NoError(t, err)
	assert.Equal(t, ts, got.Timestamp)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d, _ := newDispatcher(t)
	d.Register(core.CmdAreaCreated, func(Event) (any, error) { return nil, nil })

	_, err := d.Dispatch(Event{Command: ":NOPE:"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.True(t, d.HasHandler(core.CmdAreaCreated))
	assert.False(t, d.HasHandler(":NOPE:"))
}

func TestBuffered_ProcessesAll(t *testing.T) {
	d, _ := newDispatcher(t)

	var n atomic.Int32
	d.Register(core.CmdAreaCreated, func(Event) (any, error) {
		n.Add(1)
		return nil, nil
	}, Buffered(16))

	for range 5 {
		res, err := d.Dispatch(Event{Command: core.CmdAreaCreated})
		require.NoError(t, err)
		assert.Equal(t, Queued, res)
	}
	require.Eventually(t, func() bool { return n.Load() == 5 }, 2*time.Second, 5*time.Millisecond)
}

func TestBuffered_DropsWhenFull(t *testing.T) {
	d, _ := newDispatcher(t)
	g := newGate()
	defer close(g.release)
	d.Register(core.CmdFundingConfirmed, g.handler, Buffered(1))

	_, err := d.Dispatch(Event{Command: core.CmdFundingConfirmed})
	require.NoError(t, err)
	<-g.entered
	_, err = d.Dispatch(Event{Command: core.CmdFundingConfirmed})
	require.NoError(t, err)

	_, err = d.Dispatch(Event{Command: core.CmdFundingConfirmed})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, uint64(1), d.Dropped())
}

func TestBuffered_BlockingWaitsForRoom(t *testing.T) {
	d, _ := newDispatcher(t)
	g := newGate()
	d.Register(core.CmdItemCollected, g.handler, Buffered(1), Blocking())

	_, _ = d.Dispatch(Event{Command: core.CmdItemCollected})
	<-g.entered
	_, _ = d.Dispatch(Event{Command: core.CmdItemCollected})

	done := make(chan struct{})
	go func() {
		_, _ = d.Dispatch(Event{Command: core.CmdItemCollected})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("dispatch returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(g.release)
	<-done
	assert.Zero(t, d.Dropped())
}

func TestLogged(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		d, logger := newDispatcher(t)
		d.Register(core.CmdAreaCreated, func(Event) (any, error) { return "ok", nil }, Logged())

		_, err := d.Dispatch(Event{Command: core.CmdAreaCreated, Payload: core.AreaCreated{GameID: "g1"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"debug", "debug"}, logger.levels())
	})

	t.Run("failure", func(t *testing.T) {
		d, logger := newDispatcher(t)
		boom := errors.New("publish failed")
		d.Register(core.CmdAreaCreated, func(Event) (any, error) { return nil, boom }, Logged())

		_, err := d.Dispatch(Event{Command: core.CmdAreaCreated})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"debug", "error"}, logger.levels())
	})

	t.Run("buffered logs on the worker", func(t *testing.T) {
		d, logger := newDispatcher(t)
		d.Register(core.CmdAreaCreated, func(Event) (any, error) { return nil, nil }, Buffered(4), Logged())

		res, err := d.Dispatch(Event{Command: core.CmdAreaCreated})
		require.NoError(t, err)
		assert.Equal(t, Queued, res)
		require.Eventually(t, func() bool { return len(logger.levels()) == 2 }, 2*time.Second, 5*time.Millisecond)
	})
}

func TestShutdown_DrainsQueues(t *testing.T) {
	d, _ := newDispatcher(t)

	var n atomic.Int32
	d.Register(core.CmdItemCollected, func(Event) (any, error) {
		time.Sleep(time.Millisecond)
		n.Add(1)
		return nil, nil
	}, Buffered(32))

	for range 20 {
		_, err := d.Dispatch(Event{Command: core.CmdItemCollected})
		require.NoError(t, err)
	}

	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, int32(20), n.Load())

	_, err := d.Dispatch(Event{Command: core.CmdItemCollected})
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, d.Shutdown(context.Background()))
}

func TestShutdown_HonoursDeadline(t *testing.T) {
	d, _ := newDispatcher(t)
	g := newGate()
	defer close(g.release)
	d.Register(core.CmdAreaCreated, g.handler, Buffered(1))

	_, err := d.Dispatch(Event{Command: core.CmdAreaCreated})
	require.NoError(t, err)
	<-g.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
}
