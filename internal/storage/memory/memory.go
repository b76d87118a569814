// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/satoshigo/hunt/internal/geo"
	"github.com/satoshigo/hunt/internal/storage"
	"github.com/satoshigo/hunt/pkg/core"
)

// AreaRecord groups an area with the ids of its items, in insertion order
type AreaRecord struct {
	Area    core.Area
	ItemIDs []string
}

// Backend keeps every record in process memory. All state transitions run
// under one mutex, which is what makes the collect and confirm steps
// exactly-once for this backend.
type Backend struct {
	games    map[string]core.Game
	fundings map[string]core.Funding
	areas    map[string]*AreaRecord
	items    map[string]core.Item
	players  map[string]core.Player

	mu sync.RWMutex
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{
		games:    make(map[string]core.Game),
		fundings: make(map[string]core.Funding),
		areas:    make(map[string]*AreaRecord),
		items:    make(map[string]core.Item),
		players:  make(map[string]core.Player),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
}

// CreateGame stores a new game
func (b *Backend) CreateGame(_ context.Context, g core.Game) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.games[g.ID]; ok {
		return fmt.Errorf("game %s already exists: %w", g.ID, core.ErrInvalidInput)
	}
	b.games[g.ID] = g
	return nil
}

// GetGame returns a game by id
func (b *Backend) GetGame(_ context.Context, id string) (core.Game, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	g, ok := b.games[id]
	if !ok {
		return core.Game{}, notFound("game", id)
	}
	return g, nil
}

// ListGames returns every game, oldest first
func (b *Backend) ListGames(_ context.Context) ([]core.Game, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Game, 0, len(b.games))
	for _, g := range b.games {
		out = append(out, g)
	}
	sortGames(out)
	return out, nil
}

// ListGamesByWallets returns the games owned by any of the wallets
func (b *Backend) ListGamesByWallets(_ context.Context, wallets []string) ([]core.Game, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Game, 0)
	for _, g := range b.games {
		if slices.Contains(wallets, g.Wallet) {
			out = append(out, g)
		}
	}
	sortGames(out)
	return out, nil
}

// UpdateGame replaces a game's mutable fields. Amount is owned by
// CommitMaterialization and is never overwritten here.
func (b *Backend) UpdateGame(_ context.Context, g core.Game) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.games[g.ID]
	if !ok {
		return notFound("game", g.ID)
	}
	cur.Title = g.Title
	cur.Description = g.Description
	cur.WalletKey = g.WalletKey
	b.games[g.ID] = cur
	return nil
}

// DeleteGame removes a game and everything that hangs off it
func (b *Backend) DeleteGame(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.games[id]; !ok {
		return notFound("game", id)
	}
	for areaID, rec := range b.areas {
		if rec.Area.GameID != id {
			continue
		}
		for _, itemID := range rec.ItemIDs {
			delete(b.items, itemID)
		}
		delete(b.areas, areaID)
	}
	for fid, f := range b.fundings {
		if f.GameID == id {
			delete(b.fundings, fid)
		}
	}
	for pid, p := range b.players {
		if p.GameID == id {
			p.GameID = ""
			b.players[pid] = p
		}
	}
	delete(b.games, id)
	return nil
}

// CreateFunding stores a pending funding
func (b *Backend) CreateFunding(_ context.Context, f core.Funding) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.games[f.GameID]; !ok {
		return notFound("game", f.GameID)
	}
	if _, ok := b.fundings[f.ID]; ok {
		return fmt.Errorf("funding %s already exists: %w", f.ID, core.ErrInvalidInput)
	}
	b.fundings[f.ID] = f
	return nil
}

// GetFunding returns a funding by payment hash
func (b *Backend) GetFunding(_ context.Context, id string) (core.Funding, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	f, ok := b.fundings[id]
	if !ok {
		return core.Funding{}, notFound("funding", id)
	}
	return f, nil
}

// ListFundings returns a game's fundings, oldest first
func (b *Backend) ListFundings(_ context.Context, gameID string) ([]core.Funding, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Funding, 0)
	for _, f := range b.fundings {
		if f.GameID == gameID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CommitMaterialization confirms the funding and writes its areas and items
func (b *Backend) CommitMaterialization(_ context.Context, m storage.Materialization) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.fundings[m.FundingID]
	if !ok {
		return false, notFound("funding", m.FundingID)
	}
	if f.Confirmed {
		return false, nil
	}
	g, ok := b.games[m.GameID]
	if !ok {
		return false, notFound("game", m.GameID)
	}

	// validate before mutating so a bad batch leaves no trace
	for _, a := range m.Areas {
		if _, dup := b.areas[a.Area.ID]; dup {
			return false, fmt.Errorf("area %s already exists: %w", a.Area.ID, core.ErrInvalidInput)
		}
		for _, it := range a.Items {
			if _, dup := b.items[it.ID]; dup {
				return false, fmt.Errorf("item %s already exists: %w", it.ID, core.ErrInvalidInput)
			}
		}
	}

	confirmedAt := m.ConfirmedAt
	f.Confirmed = true
	f.ConfirmedAt = &confirmedAt
	b.fundings[f.ID] = f

	for _, a := range m.Areas {
		rec := &AreaRecord{Area: a.Area, ItemIDs: make([]string, 0, len(a.Items))}
		for _, it := range a.Items {
			b.items[it.ID] = it
			rec.ItemIDs = append(rec.ItemIDs, it.ID)
		}
		b.areas[a.Area.ID] = rec
	}

	g.Amount += m.Amount
	b.games[g.ID] = g
	return true, nil
}

// withItems copies an area record and its items out of the maps.
// Callers hold at least a read lock.
func (b *Backend) withItems(rec *AreaRecord) core.AreaWithItems {
	items := make([]core.Item, 0, len(rec.ItemIDs))
	for _, id := range rec.ItemIDs {
		if it, ok := b.items[id]; ok {
			items = append(items, it)
		}
	}
	return core.AreaWithItems{Area: rec.Area, Items: items}
}

// GetArea returns an area with its items
func (b *Backend) GetArea(_ context.Context, id string) (core.AreaWithItems, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.areas[id]
	if !ok {
		return core.AreaWithItems{}, notFound("area", id)
	}
	return b.withItems(rec), nil
}

// ListAreas returns every area of a game
func (b *Backend) ListAreas(_ context.Context, gameID string) ([]core.AreaWithItems, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.AreaWithItems, 0)
	for _, rec := range b.areas {
		if rec.Area.GameID == gameID {
			out = append(out, b.withItems(rec))
		}
	}
	sortAreas(out)
	return out, nil
}

// FindAreas returns areas within radius meters of center
func (b *Backend) FindAreas(_ context.Context, center core.Coordinate, radius float64) ([]core.AreaWithItems, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.AreaWithItems, 0)
	for _, rec := range b.areas {
		if geo.DistanceMeters(center, rec.Area.Location) <= radius {
			out = append(out, b.withItems(rec))
		}
	}
	sortAreas(out)
	return out, nil
}

// CreateItem adds an operator-authored item to an existing area
func (b *Backend) CreateItem(_ context.Context, it core.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.areas[it.AreaID]
	if !ok {
		return notFound("area", it.AreaID)
	}
	if _, dup := b.items[it.ID]; dup {
		return fmt.Errorf("item %s already exists: %w", it.ID, core.ErrInvalidInput)
	}
	b.items[it.ID] = it
	rec.ItemIDs = append(rec.ItemIDs, it.ID)
	return nil
}

// GetItem returns an item by id
func (b *Backend) GetItem(_ context.Context, id string) (core.Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	it, ok := b.items[id]
	if !ok {
		return core.Item{}, notFound("item", id)
	}
	return it, nil
}

// UpdateItem replaces an uncollected item's descriptive fields. Collection
// state is owned by CollectItem and is kept as stored.
func (b *Backend) UpdateItem(_ context.Context, it core.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.items[it.ID]
	if !ok {
		return notFound("item", it.ID)
	}
	if cur.Collected {
		return fmt.Errorf("item %s: %w", it.ID, core.ErrAlreadyCollected)
	}
	cur.Type = it.Type
	cur.Value = it.Value
	cur.Appearance = it.Appearance
	cur.Data = it.Data
	b.items[it.ID] = cur
	return nil
}

// CollectItem claims an item for a player and credits its value
func (b *Backend) CollectItem(_ context.Context, itemID, playerID string, at time.Time) (core.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	it, ok := b.items[itemID]
	if !ok {
		return core.Item{}, notFound("item", itemID)
	}
	if it.Collected {
		return core.Item{}, fmt.Errorf("item %s: %w", itemID, core.ErrAlreadyCollected)
	}
	p, ok := b.players[playerID]
	if !ok {
		return core.Item{}, notFound("player", playerID)
	}

	it.Collected = true
	it.CollectedBy = playerID
	it.CollectedAt = &at
	b.items[itemID] = it

	p.Balance += it.Value
	b.players[playerID] = p
	return it, nil
}

// CreatePlayer stores a new player
func (b *Backend) CreatePlayer(_ context.Context, p core.Player) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.players[p.ID]; ok {
		return fmt.Errorf("player %s already exists: %w", p.ID, core.ErrInvalidInput)
	}
	for _, other := range b.players {
		if other.InKey == p.InKey {
			return fmt.Errorf("player key already in use: %w", core.ErrInvalidInput)
		}
	}
	b.players[p.ID] = p
	return nil
}

// GetPlayer returns a player by id
func (b *Backend) GetPlayer(_ context.Context, id string) (core.Player, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.players[id]
	if !ok {
		return core.Player{}, notFound("player", id)
	}
	return p, nil
}

// GetPlayerByKey returns the player owning a secret key
func (b *Backend) GetPlayerByKey(_ context.Context, inKey string) (core.Player, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, p := range b.players {
		if p.InKey == inKey {
			return p, nil
		}
	}
	return core.Player{}, fmt.Errorf("player by key: %w", core.ErrNotFound)
}

// UpdatePlayer replaces a player's name and game association.
// Balance is owned by CollectItem.
func (b *Backend) UpdatePlayer(_ context.Context, p core.Player) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.players[p.ID]
	if !ok {
		return notFound("player", p.ID)
	}
	cur.UserName = p.UserName
	cur.GameID = p.GameID
	b.players[p.ID] = cur
	return nil
}

// ListPlayersByGames returns the players currently in any of the games
func (b *Backend) ListPlayersByGames(_ context.Context, gameIDs []string) ([]core.Player, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Player, 0)
	for _, p := range b.players {
		if p.GameID != "" && slices.Contains(gameIDs, p.GameID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func sortGames(gs []core.Game) {
	sort.Slice(gs, func(i, j int) bool {
		if gs[i].CreatedAt.Equal(gs[j].CreatedAt) {
			return gs[i].ID < gs[j].ID
		}
		return gs[i].CreatedAt.Before(gs[j].CreatedAt)
	})
}

func sortAreas(as []core.AreaWithItems) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].Area.CreatedAt.Equal(as[j].Area.CreatedAt) {
			return as[i].Area.ID < as[j].Area.ID
		}
		return as[i].Area.CreatedAt.Before(as[j].Area.CreatedAt)
	})
}
