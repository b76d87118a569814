// Package worker turns engine events into side effects: broadcast envelopes
// for connected clients and time-series points for InfluxDB.
package worker

import (
	"log/slog"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/satoshigo/hunt/internal/broadcast"
)

// DefaultBufferSize is the queue length of each event handler.
const DefaultBufferSize = 1000

// PointWriter stores time-series points. *influx.Manager satisfies it.
type PointWriter interface {
	WritePoint(point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Publisher broadcast.Publisher
	Points    PointWriter // optional
	Logger    *slog.Logger
}

// Manager owns the event handlers.
type Manager struct {
	deps Dependencies
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Publisher == nil {
		deps.Publisher = broadcast.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{deps: deps}
}
