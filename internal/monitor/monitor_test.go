package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshigo/hunt/internal/influx"
)

type fakePending struct {
	pending atomic.Int64
	calls   atomic.Int64
	err     error
}

func (f *fakePending) RetryPending(context.Context) (int, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	n := f.pending.Swap(0)
	return int(n), nil
}

func (f *fakePending) PendingLen() int { return int(f.pending.Load()) }

type fakeDrops uint64

func (f fakeDrops) Dropped() uint64 { return uint64(f) }

type fakeHub struct{ clients int }

func (h fakeHub) Clients() int     { return h.clients }
func (h fakeHub) Dropped() uint64 { return 7 }

type fakePoints struct {
	mu     sync.Mutex
	points []*influxdb2_write.Point
}

func (p *fakePoints) WritePoint(pt *influxdb2_write.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = append(p.points, pt)
	return nil
}

func (p *fakePoints) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.points)
}

var fixed = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSnapshot(t *testing.T) {
	pending := &fakePending{}
	pending.pending.Store(3)

	s := NewService(Dependencies{
		Pending:    pending,
		Dispatcher: fakeDrops(2),
		Hub:        fakeHub{clients: 4},
		Now:        func() time.Time { return fixed },
	})

	assert.Equal(t, influx.Performance{
		Time:              fixed,
		PendingFundings:   3,
		DispatcherDropped: 2,
		BroadcastClients:  4,
		BroadcastDropped:  7,
	}, s.Snapshot())
}

func TestSnapshotWithoutCollaborators(t *testing.T) {
	s := NewService(Dependencies{Now: func() time.Time { return fixed }})
	assert.Equal(t, influx.Performance{Time: fixed}, s.Snapshot())
}

func TestTickRetriesAndWritesPoint(t *testing.T) {
	pending := &fakePending{}
	pending.pending.Store(2)
	points := &fakePoints{}

	s := NewService(Dependencies{Pending: pending, Points: points})
	s.Tick(context.Background())

	assert.Equal(t, int64(1), pending.calls.Load())
	assert.Zero(t, pending.PendingLen())
	require.Equal(t, 1, points.len())
	assert.Equal(t, influx.MeasurementPerformance, points.points[0].Name())

	// nothing pending, nothing to retry
	s.Tick(context.Background())
	assert.Equal(t, int64(1), pending.calls.Load())
	assert.Equal(t, 2, points.len())
}

func TestTickSurvivesRetryErrors(t *testing.T) {
	pending := &fakePending{err: errors.New("lnbits down")}
	pending.pending.Store(1)

	s := NewService(Dependencies{Pending: pending})
	s.Tick(context.Background())
	assert.Equal(t, 1, pending.PendingLen())
}

func TestStartStop(t *testing.T) {
	pending := &fakePending{}
	pending.pending.Store(1)
	points := &fakePoints{}

	s := NewService(Dependencies{Pending: pending, Points: points, Interval: 5 * time.Millisecond})
	assert.False(t, s.IsRunning())

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return points.len() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, pending.PendingLen())

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}
