// Package influx records engine activity as InfluxDB points. When the server
// cannot be reached points are appended, gzipped, to a line-protocol backup
// file that can be replayed later.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/satoshigo/hunt/pkg/core"
)

// ErrDisabled is returned by Connect when influx output is switched off.
var ErrDisabled = errors.New("influx output is disabled")

// Measurement names.
const (
	MeasurementFunding     = "funding_confirmed"
	MeasurementCollect     = "item_collected"
	MeasurementPerformance = "engine_performance"
)

const retentionSeconds = 60 * 60 * 24 * 90

// Config holds connection settings.
type Config struct {
	Enabled    bool
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// Manager handles InfluxDB connections and writes.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu         sync.Mutex
	client     influxdb2.Client
	writer     influxdb2_api.WriteAPI
	backup     *gzip.Writer
	backupFile *os.File
	valid      bool
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: log}
}

// IsValid reports whether points go to the server rather than the backup file.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// Connect establishes a connection to InfluxDB, falling back to the backup
// file when the server does not answer.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.valid = false
		m.client.Close()
		m.client = nil
		if m.backup == nil {
			m.logger.Info().Str("backupPath", m.cfg.BackupPath).
				Msg("Failed to reach InfluxDB, writing to backup file")

			file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %w", err)
			}
			m.backupFile = file
			m.backup = gzip.NewWriter(file)
		}
		return nil
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.writer = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.writer.Errors())

	m.valid = true
	m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	buckets := m.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			m.logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		m.writer.WritePoint(point)
		return nil
	}
	if m.backup == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backup.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending points and releases the client or backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.writer != nil {
		m.writer.Flush()
		m.writer = nil
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	if m.backup != nil {
		errs = append(errs, m.backup.Close())
		m.backup = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	m.valid = false
	return errors.Join(errs...)
}

// FundingPoint describes a confirmed funding.
func FundingPoint(e core.FundingConfirmed) *influxdb2_write.Point {
	ts := time.Now()
	if e.Funding.ConfirmedAt != nil {
		ts = *e.Funding.ConfirmedAt
	}
	return influxdb2.NewPoint(MeasurementFunding,
		map[string]string{"game_id": e.Funding.GameID, "wallet": e.Funding.Wallet},
		map[string]any{
			"amount":         e.Funding.Amount,
			"areas":          e.AreaCount,
			"items_per_area": e.ItemsPerArea,
			"item_value":     e.PerItemValue,
			"unallocated":    e.Unallocated,
		},
		ts,
	)
}

// CollectPoint describes a claimed item.
func CollectPoint(e core.ItemCollected) *influxdb2_write.Point {
	ts := time.Now()
	if e.Item.CollectedAt != nil {
		ts = *e.Item.CollectedAt
	}
	return influxdb2.NewPoint(MeasurementCollect,
		map[string]string{"game_id": e.GameID, "player_id": e.PlayerID},
		map[string]any{"value": e.Item.Value},
		ts,
	)
}

// Performance is a snapshot of the engine's queues.
type Performance struct {
	Time              time.Time
	PendingFundings   int
	DispatcherDropped uint64
	BroadcastClients  int
	BroadcastDropped  uint64
}

// PerformancePoint describes an engine snapshot.
func PerformancePoint(p Performance) *influxdb2_write.Point {
	return influxdb2.NewPoint(MeasurementPerformance,
		nil,
		map[string]any{
			"pending_fundings":   p.PendingFundings,
			"dispatcher_dropped": p.DispatcherDropped,
			"broadcast_clients":  p.BroadcastClients,
			"broadcast_dropped":  p.BroadcastDropped,
		},
		p.Time,
	)
}
