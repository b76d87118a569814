// Package lifecycle owns games, fundings, players and operator items. It is
// the layer the HTTP API talks to: it checks ownership, bills fundings through
// the payment provider and hands paid fundings to the materializer.
package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/satoshigo/hunt/internal/materialize"
	"github.com/satoshigo/hunt/internal/payment"
	"github.com/satoshigo/hunt/internal/queue"
	"github.com/satoshigo/hunt/internal/storage"
	"github.com/satoshigo/hunt/pkg/core"
)

// Defaults applied by New when the corresponding field is zero.
const (
	DefaultPaymentTimeout = 10 * time.Second
	DefaultRetryBase      = 200 * time.Millisecond
	DefaultMaxAttempts    = 10
	maxRetryDelay         = 5 * time.Second
)

// Materializer turns a paid funding into areas and items.
// *materialize.Materializer satisfies it.
type Materializer interface {
	Materialize(ctx context.Context, funding core.Funding, game core.Game) (materialize.Result, error)
}

// Pending is a paid funding whose materialization has to be retried.
type Pending struct {
	PaymentHash string
	Attempts    int
	LastError   string
}

func pendingKey(p Pending) string { return p.PaymentHash }

// Dependencies holds the collaborators of a Manager.
type Dependencies struct {
	Store        storage.Backend
	Payments     payment.Provider
	Materializer Materializer
	Logger       *slog.Logger

	// PaymentTimeout bounds each payment call. Retries is the number of
	// extra attempts on upstream failures, spaced from RetryBase upwards.
	PaymentTimeout time.Duration
	Retries        uint64
	RetryBase      time.Duration
	// MaxAttempts caps how often a pending funding is retried before it is
	// dropped from the queue and left for an operator.
	MaxAttempts int

	NewID  func() string
	NewKey func() (string, error)
	Now    func() time.Time
}

// Manager implements the game and funding lifecycle.
type Manager struct {
	deps    Dependencies
	pending *queue.Queue[string, Pending]
	polls   singleflight.Group

	requested metric.Int64Counter
	failures  metric.Int64Counter
}

// New creates a Manager.
func New(deps Dependencies) (*Manager, error) {
	if deps.Store == nil || deps.Payments == nil || deps.Materializer == nil {
		return nil, fmt.Errorf("lifecycle needs a store, a payment provider and a materializer")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.PaymentTimeout <= 0 {
		deps.PaymentTimeout = DefaultPaymentTimeout
	}
	if deps.RetryBase <= 0 {
		deps.RetryBase = DefaultRetryBase
	}
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = DefaultMaxAttempts
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.NewKey == nil {
		deps.NewKey = randomKey
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	m := &Manager{deps: deps, pending: queue.New(pendingKey)}
	mt := meter()

	var err error
	m.requested, err = mt.Int64Counter("fundings.requested",
		metric.WithDescription("Funding invoices created"))
	if err != nil {
		return nil, fmt.Errorf("creating requested counter: %w", err)
	}
	m.failures, err = mt.Int64Counter("fundings.materialize.failures",
		metric.WithDescription("Paid fundings whose materialization failed"))
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	if _, err = mt.Int64ObservableGauge("fundings.pending",
		metric.WithDescription("Paid fundings waiting for a materialization retry"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(m.pending.Len()))
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("creating pending gauge: %w", err)
	}
	return m, nil
}

// PendingLen returns the number of fundings waiting for a retry.
func (m *Manager) PendingLen() int {
	return m.pending.Len()
}

// randomKey returns 16 random bytes, hex encoded.
func randomKey() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

func (m *Manager) backoff() retry.Backoff {
	b := retry.NewExponential(m.deps.RetryBase)
	b = retry.WithCappedDuration(maxRetryDelay, b)
	return retry.WithMaxRetries(m.deps.Retries, b)
}

// callPayment runs fn with a per-attempt timeout, retrying upstream failures
// with capped exponential backoff.
func (m *Manager) callPayment(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, m.backoff(), func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, m.deps.PaymentTimeout)
		defer cancel()
		return m.retryIfUpstream(ctx, "Payment call failed, retrying", fn(cctx))
	})
}

// callStore runs a store call under the same backoff as callPayment. A
// failure without a domain kind is a persistence failure and is reported
// as core.ErrUpstreamUnavailable.
func (m *Manager) callStore(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, m.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && core.KindOf(err) == core.KindInternal {
			err = fmt.Errorf("%w: %w", err, core.ErrUpstreamUnavailable)
		}
		return m.retryIfUpstream(ctx, "Store call failed, retrying", err)
	})
}

func (m *Manager) retryIfUpstream(ctx context.Context, msg string, err error) error {
	if err != nil && core.IsRetryable(err) {
		m.deps.Logger.DebugContext(ctx, msg, "error", err)
		return retry.RetryableError(err)
	}
	return err
}

func (m *Manager) loadFunding(ctx context.Context, paymentHash string) (core.Funding, error) {
	var f core.Funding
	err := m.callStore(ctx, func(ctx context.Context) error {
		var err error
		f, err = m.deps.Store.GetFunding(ctx, paymentHash)
		return err
	})
	return f, err
}

func (m *Manager) loadGame(ctx context.Context, id string) (core.Game, error) {
	var g core.Game
	err := m.callStore(ctx, func(ctx context.Context) error {
		var err error
		g, err = m.deps.Store.GetGame(ctx, id)
		return err
	})
	return g, err
}
