// Package monitor runs the periodic housekeeping loop: it retries fundings
// whose materialization failed and records engine performance snapshots.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/satoshigo/hunt/internal/influx"
)

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = 30 * time.Second

// PendingRetrier is the part of the lifecycle manager the monitor drives.
type PendingRetrier interface {
	RetryPending(ctx context.Context) (int, error)
	PendingLen() int
}

// DropCounter reports messages discarded by a buffered component.
type DropCounter interface {
	Dropped() uint64
}

// ClientCounter reports connected broadcast clients.
type ClientCounter interface {
	DropCounter
	Clients() int
}

// PointWriter stores time-series points.
type PointWriter interface {
	WritePoint(point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Pending    PendingRetrier
	Dispatcher DropCounter   // optional
	Hub        ClientCounter // optional
	Points     PointWriter   // optional
	Logger     *slog.Logger
	Interval   time.Duration
	Now        func() time.Time
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot returns the current engine status.
func (s *Service) Snapshot() influx.Performance {
	perf := influx.Performance{Time: s.deps.Now()}
	if s.deps.Pending != nil {
		perf.PendingFundings = s.deps.Pending.PendingLen()
	}
	if s.deps.Dispatcher != nil {
		perf.DispatcherDropped = s.deps.Dispatcher.Dropped()
	}
	if s.deps.Hub != nil {
		perf.BroadcastClients = s.deps.Hub.Clients()
		perf.BroadcastDropped = s.deps.Hub.Dropped()
	}
	return perf
}

// Tick runs one housekeeping pass.
func (s *Service) Tick(ctx context.Context) {
	logger := s.deps.Logger

	if s.deps.Pending != nil && s.deps.Pending.PendingLen() > 0 {
		confirmed, err := s.deps.Pending.RetryPending(ctx)
		if err != nil {
			logger.Warn("Pending fundings still failing", "confirmed", confirmed, "remaining", s.deps.Pending.PendingLen(), "error", err)
		} else if confirmed > 0 {
			logger.Info("Confirmed pending fundings", "confirmed", confirmed)
		}
	}

	perf := s.Snapshot()
	logger.Debug("Engine status",
		"pendingFundings", perf.PendingFundings,
		"dispatcherDropped", perf.DispatcherDropped,
		"broadcastClients", perf.BroadcastClients,
		"broadcastDropped", perf.BroadcastDropped,
	)

	if s.deps.Points != nil {
		if err := s.deps.Points.WritePoint(influx.PerformancePoint(perf)); err != nil {
			logger.Debug("Skipping performance point", "error", err)
		}
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-stop
			cancel()
		}()

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the current pass to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning || s.stopChan == nil {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	done := s.done
	s.mu.Unlock()
	<-done
}
