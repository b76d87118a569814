// internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/satoshigo/hunt/pkg/core"
)

// Materialization is everything written when a funding is confirmed.
type Materialization struct {
	FundingID   string
	GameID      string
	Amount      int64 // added to the game amount
	Areas       []core.AreaWithItems
	ConfirmedAt time.Time
}

// Backend is the interface all storage implementations must satisfy.
// Missing records are reported as core.ErrNotFound.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Games
	CreateGame(ctx context.Context, g core.Game) error
	GetGame(ctx context.Context, id string) (core.Game, error)
	ListGames(ctx context.Context) ([]core.Game, error)
	ListGamesByWallets(ctx context.Context, wallets []string) ([]core.Game, error)
	UpdateGame(ctx context.Context, g core.Game) error
	// DeleteGame removes the game with its fundings, areas and items and
	// detaches any players that had entered it.
	DeleteGame(ctx context.Context, id string) error

	// Fundings
	CreateFunding(ctx context.Context, f core.Funding) error
	GetFunding(ctx context.Context, id string) (core.Funding, error)
	ListFundings(ctx context.Context, gameID string) ([]core.Funding, error)

	// CommitMaterialization flips the funding to confirmed, inserts every
	// area and item and credits the game, all or nothing. applied is false
	// when the funding was already confirmed, in which case nothing is written.
	CommitMaterialization(ctx context.Context, m Materialization) (applied bool, err error)

	// Areas and items
	GetArea(ctx context.Context, id string) (core.AreaWithItems, error)
	ListAreas(ctx context.Context, gameID string) ([]core.AreaWithItems, error)
	// FindAreas returns areas whose centre lies within radius meters of center.
	FindAreas(ctx context.Context, center core.Coordinate, radius float64) ([]core.AreaWithItems, error)
	CreateItem(ctx context.Context, it core.Item) error
	GetItem(ctx context.Context, id string) (core.Item, error)
	UpdateItem(ctx context.Context, it core.Item) error

	// CollectItem marks the item collected by playerID and credits the
	// player's balance with its value in one step. It returns
	// core.ErrAlreadyCollected when the item was claimed before.
	CollectItem(ctx context.Context, itemID, playerID string, at time.Time) (core.Item, error)

	// Players
	CreatePlayer(ctx context.Context, p core.Player) error
	GetPlayer(ctx context.Context, id string) (core.Player, error)
	GetPlayerByKey(ctx context.Context, inKey string) (core.Player, error)
	UpdatePlayer(ctx context.Context, p core.Player) error
	ListPlayersByGames(ctx context.Context, gameIDs []string) ([]core.Player, error)
}

// Dumpable is an optional interface for backends that can snapshot to disk.
type Dumpable interface {
	Dump(path string) error
}
