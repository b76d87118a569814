// Package claim resolves players entering games and collecting items.
package claim

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/satoshigo/hunt/internal/dispatcher"
	"github.com/satoshigo/hunt/internal/geo"
	"github.com/satoshigo/hunt/internal/storage"
	"github.com/satoshigo/hunt/pkg/core"
)

// Emitter receives engine events. *dispatcher.Dispatcher satisfies it.
type Emitter interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Dependencies holds the collaborators of a Resolver.
type Dependencies struct {
	Store  storage.Backend
	Events Emitter // optional
	Logger *slog.Logger
	// ProximityCheck makes CollectAt enforce the area radius.
	ProximityCheck bool
	Now            func() time.Time
}

// Resolver awards items to players.
type Resolver struct {
	deps Dependencies

	collected metric.Int64Counter
	sats      metric.Int64Counter
	conflicts metric.Int64Counter
}

// New creates a Resolver.
func New(deps Dependencies) (*Resolver, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("resolver needs a store")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := &Resolver{deps: deps}
	m := meter()

	var err error
	r.collected, err = m.Int64Counter("items.collected",
		metric.WithDescription("Items awarded to players"))
	if err != nil {
		return nil, fmt.Errorf("creating collected counter: %w", err)
	}
	r.sats, err = m.Int64Counter("sats.collected",
		metric.WithDescription("Sats awarded to players"), metric.WithUnit("{sat}"))
	if err != nil {
		return nil, fmt.Errorf("creating sats counter: %w", err)
	}
	r.conflicts, err = m.Int64Counter("items.collect.conflicts",
		metric.WithDescription("Collect attempts on items already taken"))
	if err != nil {
		return nil, fmt.Errorf("creating conflicts counter: %w", err)
	}
	return r, nil
}

// EnterGame associates the player holding inKey with gameID, replacing any
// previous association.
func (r *Resolver) EnterGame(ctx context.Context, inKey, gameID string) (core.Game, core.Player, error) {
	if strings.TrimSpace(inKey) == "" {
		return core.Game{}, core.Player{}, fmt.Errorf("player key is required: %w", core.ErrInvalidInput)
	}
	player, err := r.deps.Store.GetPlayerByKey(ctx, inKey)
	if err != nil {
		return core.Game{}, core.Player{}, err
	}
	game, err := r.deps.Store.GetGame(ctx, gameID)
	if err != nil {
		return core.Game{}, core.Player{}, err
	}

	player.GameID = game.ID
	if err := r.deps.Store.UpdatePlayer(ctx, player); err != nil {
		return core.Game{}, core.Player{}, fmt.Errorf("enter game %s: %w", game.ID, err)
	}
	r.deps.Logger.InfoContext(ctx, "Player entered game", "player_id", player.ID, "game_id", game.ID)
	return game, player, nil
}

// Collect awards itemID to playerID. Exactly one of any number of concurrent
// callers succeeds; the rest get core.ErrAlreadyCollected.
func (r *Resolver) Collect(ctx context.Context, playerID, itemID string) (core.Item, error) {
	item, err := r.deps.Store.CollectItem(ctx, itemID, playerID, r.deps.Now().UTC())
	if err != nil {
		if core.KindOf(err) == core.KindAlreadyCollected {
			r.conflicts.Add(ctx, 1)
		}
		return core.Item{}, err
	}

	area, err := r.deps.Store.GetArea(ctx, item.AreaID)
	gameID := area.Area.GameID
	if err != nil {
		// the award stands; the event just goes out without a game
		r.deps.Logger.WarnContext(ctx, "Collected item has no area", "item_id", item.ID, "error", err)
		gameID = ""
	}

	attrs := metric.WithAttributes(attribute.String("game_id", gameID))
	r.collected.Add(ctx, 1, attrs)
	r.sats.Add(ctx, item.Value, attrs)
	r.deps.Logger.InfoContext(ctx, "Item collected",
		"item_id", item.ID, "player_id", playerID, "game_id", gameID, "value", item.Value)

	if r.deps.Events != nil {
		if _, err := r.deps.Events.Dispatch(dispatcher.Event{
			Command: core.CmdItemCollected,
			Payload: core.ItemCollected{GameID: gameID, Item: item, PlayerID: playerID},
		}); err != nil {
			r.deps.Logger.WarnContext(ctx, "Event not dispatched", "command", core.CmdItemCollected, "error", err)
		}
	}
	return item, nil
}

// CollectAt is Collect with the player's reported position. When the
// proximity check is enabled the player must be inside the area's radius.
func (r *Resolver) CollectAt(ctx context.Context, playerID, itemID string, at core.Coordinate) (core.Item, error) {
	if !r.deps.ProximityCheck {
		return r.Collect(ctx, playerID, itemID)
	}
	if err := geo.Validate(at); err != nil {
		return core.Item{}, err
	}

	item, err := r.deps.Store.GetItem(ctx, itemID)
	if err != nil {
		return core.Item{}, err
	}
	area, err := r.deps.Store.GetArea(ctx, item.AreaID)
	if err != nil {
		return core.Item{}, err
	}
	if d := geo.DistanceMeters(area.Area.Location, at); d > area.Area.Radius {
		return core.Item{}, fmt.Errorf("player is %.1fm from area %s (radius %.1fm): %w",
			d, area.Area.ID, area.Area.Radius, core.ErrOutOfRange)
	}
	return r.Collect(ctx, playerID, itemID)
}

// RequiresPosition reports whether collects must carry the player's position.
func (r *Resolver) RequiresPosition() bool {
	return r.deps.ProximityCheck
}
