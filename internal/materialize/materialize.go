// Package materialize turns a paid funding into areas and items. Everything a
// funding produces is written in one storage commit guarded by the funding's
// confirmed flag, so a funding is materialized at most once however many
// callers race on it.
package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/satoshigo/hunt/internal/dispatcher"
	"github.com/satoshigo/hunt/internal/geo"
	"github.com/satoshigo/hunt/internal/partition"
	"github.com/satoshigo/hunt/internal/storage"
	"github.com/satoshigo/hunt/pkg/core"
)

// DefaultCaptureRadius is the capture radius of new areas, in meters.
const DefaultCaptureRadius = 10.0

// Random is the randomness a materialization consumes. *rand.Rand from
// math/rand/v2 satisfies it.
type Random interface {
	Float64() float64
	IntN(n int) int
}

// Emitter receives engine events. *dispatcher.Dispatcher satisfies it.
type Emitter interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Dependencies holds the collaborators of a Materializer.
type Dependencies struct {
	Store         storage.Backend
	Events        Emitter // optional
	Rand          Random
	Logger        *slog.Logger
	CaptureRadius float64
	// NewID and Now are replaced in tests.
	NewID func() string
	Now   func() time.Time
}

// Result describes one materialization attempt.
type Result struct {
	Plan  partition.Plan
	Areas []core.AreaWithItems
	// AlreadyConfirmed is true when another caller confirmed the funding
	// first. Nothing was written and Areas is empty.
	AlreadyConfirmed bool
}

// Materializer creates areas and items for confirmed fundings.
type Materializer struct {
	deps Dependencies

	// rand.Rand is not safe for concurrent use
	randMu sync.Mutex

	confirmed   metric.Int64Counter
	allocated   metric.Int64Counter
	unallocated metric.Int64Counter
	dropped     metric.Int64Counter
}

// New creates a Materializer.
func New(deps Dependencies) (*Materializer, error) {
	if deps.Store == nil || deps.Rand == nil {
		return nil, fmt.Errorf("materializer needs a store and a random source")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.CaptureRadius <= 0 {
		deps.CaptureRadius = DefaultCaptureRadius
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	m := &Materializer{deps: deps}
	mt := meter()

	var err error
	m.confirmed, err = mt.Int64Counter("fundings.confirmed",
		metric.WithDescription("Fundings materialized"))
	if err != nil {
		return nil, fmt.Errorf("creating confirmed counter: %w", err)
	}
	m.allocated, err = mt.Int64Counter("sats.materialized",
		metric.WithDescription("Sats placed into items"), metric.WithUnit("{sat}"))
	if err != nil {
		return nil, fmt.Errorf("creating allocated counter: %w", err)
	}
	m.unallocated, err = mt.Int64Counter("sats.unallocated",
		metric.WithDescription("Sats left over by integer division"), metric.WithUnit("{sat}"))
	if err != nil {
		return nil, fmt.Errorf("creating unallocated counter: %w", err)
	}
	m.dropped, err = mt.Int64Counter("broadcast.events.dropped",
		metric.WithDescription("Area events the dispatcher refused"))
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	return m, nil
}

// Materialize partitions the funding, places areas inside its rectangle and
// commits them. It is safe to call more than once for the same funding; only
// the first successful commit writes anything.
func (m *Materializer) Materialize(ctx context.Context, funding core.Funding, game core.Game) (Result, error) {
	if funding.GameID != game.ID {
		return Result{}, fmt.Errorf("funding %s belongs to game %s, not %s: %w",
			funding.ID, funding.GameID, game.ID, core.ErrInvalidInput)
	}

	plan, areas, err := m.build(funding)
	if err != nil {
		return Result{}, err
	}
	now := m.deps.Now().UTC()

	applied, err := m.deps.Store.CommitMaterialization(ctx, storage.Materialization{
		FundingID:   funding.ID,
		GameID:      game.ID,
		Amount:      funding.Amount,
		Areas:       areas,
		ConfirmedAt: now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("commit materialization for funding %s: %w", funding.ID, err)
	}
	if !applied {
		m.deps.Logger.DebugContext(ctx, "Funding already materialized", "payment_hash", funding.ID)
		return Result{Plan: plan, AlreadyConfirmed: true}, nil
	}

	gameAttr := metric.WithAttributes(attribute.String("game_id", game.ID))
	m.confirmed.Add(ctx, 1, gameAttr)
	m.allocated.Add(ctx, plan.Allocated(), gameAttr)
	m.unallocated.Add(ctx, plan.Remainder, gameAttr)

	m.deps.Logger.InfoContext(ctx, "Funding materialized",
		"payment_hash", funding.ID,
		"game_id", game.ID,
		"amount", funding.Amount,
		"areas", plan.AreaCount,
		"items_per_area", plan.ItemsPerArea,
		"item_value", plan.PerItemValue,
		"unallocated", plan.Remainder,
	)

	funding.Confirmed = true
	funding.ConfirmedAt = &now
	m.emit(ctx, core.CmdFundingConfirmed, core.FundingConfirmed{
		Funding:      funding,
		AreaCount:    plan.AreaCount,
		ItemsPerArea: plan.ItemsPerArea,
		PerItemValue: plan.PerItemValue,
		Unallocated:  plan.Remainder,
	})
	for _, a := range areas {
		m.emit(ctx, core.CmdAreaCreated, core.AreaCreated{GameID: game.ID, Area: a})
	}

	return Result{Plan: plan, Areas: areas}, nil
}

// build partitions the amount and lays out areas and items. The random
// source is held for the whole layout so one funding's draws are contiguous.
func (m *Materializer) build(f core.Funding) (partition.Plan, []core.AreaWithItems, error) {
	if err := geo.Validate(f.TopLeft); err != nil {
		return partition.Plan{}, nil, err
	}
	if err := geo.Validate(f.BottomRight); err != nil {
		return partition.Plan{}, nil, err
	}

	m.randMu.Lock()
	defer m.randMu.Unlock()

	plan, err := partition.Partition(f.Amount, m.deps.Rand)
	if err != nil {
		return partition.Plan{}, nil, fmt.Errorf("partition funding %s: %w", f.ID, err)
	}

	created := m.deps.Now().UTC()
	areas := make([]core.AreaWithItems, 0, plan.AreaCount)
	for range plan.AreaCount {
		at := geo.Sample(m.deps.Rand, f.TopLeft, f.BottomRight)
		if !geo.Contains(f.TopLeft, f.BottomRight, at) {
			return partition.Plan{}, nil, fmt.Errorf("funding %s: sampled %v outside its rectangle", f.ID, at)
		}
		area := core.Area{
			ID:        m.deps.NewID(),
			GameID:    f.GameID,
			FundingID: f.ID,
			Location:  at,
			Radius:    m.deps.CaptureRadius,
			CreatedAt: created,
		}
		items := make([]core.Item, 0, plan.ItemsPerArea)
		for range plan.ItemsPerArea {
			items = append(items, core.Item{
				ID:         m.deps.NewID(),
				AreaID:     area.ID,
				Type:       core.ItemTypeSimple,
				Value:      plan.PerItemValue,
				Appearance: core.AppearanceCoin,
			})
		}
		areas = append(areas, core.AreaWithItems{Area: area, Items: items})
	}
	return plan, areas, nil
}

// emit hands an event to the dispatcher. Failures are counted and logged,
// never returned: the commit already happened.
func (m *Materializer) emit(ctx context.Context, cmd string, payload any) {
	if m.deps.Events == nil {
		return
	}
	if _, err := m.deps.Events.Dispatch(dispatcher.Event{Command: cmd, Payload: payload}); err != nil {
		m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("command", cmd)))
		m.deps.Logger.WarnContext(ctx, "Event not dispatched", "command", cmd, "error", err)
	}
}
