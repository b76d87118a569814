// Package gormstorage implements storage.Backend on top of GORM. It is shared
// by the sqlite and postgres backends, which only differ in how the *gorm.DB
// is created and maintained.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/satoshigo/hunt/internal/database"
	"github.com/satoshigo/hunt/internal/geo"
	"github.com/satoshigo/hunt/internal/logging"
	"github.com/satoshigo/hunt/internal/model"
	"github.com/satoshigo/hunt/internal/model/convert"
	"github.com/satoshigo/hunt/internal/storage"
	"github.com/satoshigo/hunt/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
	BatchSize  int
}

// Backend implements storage.Backend using GORM.
type Backend struct {
	deps Dependencies
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.BatchSize <= 0 {
		deps.BatchSize = 500
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{deps: deps}
}

// DB exposes the underlying connection for wrappers.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend: no database configured")
	}
	b.deps.LogManager.WriteLog("setupDB", "Migrating schema", "INFO")
	if err := database.Migrate(b.deps.DB); err != nil {
		b.deps.LogManager.WriteLog("setupDB", fmt.Sprintf("Failed to migrate schema: %v", err), "ERROR")
		return err
	}
	b.deps.LogManager.WriteLog("setupDB", "Database setup complete", "INFO")
	return nil
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (b *Backend) db(ctx context.Context) *gorm.DB {
	return b.deps.DB.WithContext(ctx)
}

// lookupErr maps gorm.ErrRecordNotFound to core.ErrNotFound and any other
// failure to core.ErrUpstreamUnavailable.
func lookupErr(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
	}
	return dbErr("failed to get %s %s: %w", kind, id, err)
}

// dbErr formats a database failure and tags it as retryable.
func dbErr(format string, args ...any) error {
	return unavailable(fmt.Errorf(format, args...))
}

// unavailable tags err with core.ErrUpstreamUnavailable unless it already
// carries a domain kind. Connection, timeout and commit failures all land here.
func unavailable(err error) error {
	if err == nil || errors.Is(err, errAlreadyConfirmed) || core.KindOf(err) != core.KindInternal {
		return err
	}
	return fmt.Errorf("%w: %w", err, core.ErrUpstreamUnavailable)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
}

// exists reports whether a row with the given id is present in m's table.
func exists(tx *gorm.DB, m any, id string) (bool, error) {
	var count int64
	if err := tx.Model(m).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

////////////////////////
// GAMES
////////////////////////

// CreateGame inserts a new game.
func (b *Backend) CreateGame(ctx context.Context, g core.Game) error {
	row := convert.CoreToGame(g)
	if err := b.db(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return dbErr("failed to insert game: %w", err)
	}
	return nil
}

// GetGame returns a game by id.
func (b *Backend) GetGame(ctx context.Context, id string) (core.Game, error) {
	var row model.Game
	if err := b.db(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return core.Game{}, lookupErr(err, "game", id)
	}
	return convert.GameToCore(row), nil
}

// ListGames returns every game, oldest first.
func (b *Backend) ListGames(ctx context.Context) ([]core.Game, error) {
	var rows []model.Game
	if err := b.db(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, dbErr("failed to list games: %w", err)
	}
	return gamesToCore(rows), nil
}

// ListGamesByWallets returns the games owned by any of the wallets.
func (b *Backend) ListGamesByWallets(ctx context.Context, wallets []string) ([]core.Game, error) {
	if len(wallets) == 0 {
		return []core.Game{}, nil
	}
	var rows []model.Game
	if err := b.db(ctx).Where("wallet IN ?", wallets).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, dbErr("failed to list games: %w", err)
	}
	return gamesToCore(rows), nil
}

func gamesToCore(rows []model.Game) []core.Game {
	out := make([]core.Game, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.GameToCore(r))
	}
	return out
}

// UpdateGame writes title, description and wallet key. The amount column
// is only ever changed by CommitMaterialization.
func (b *Backend) UpdateGame(ctx context.Context, g core.Game) error {
	res := b.db(ctx).Model(&model.Game{}).Where("id = ?", g.ID).Updates(map[string]any{
		"title":       g.Title,
		"description": g.Description,
		"wallet_key":  g.WalletKey,
	})
	if res.Error != nil {
		return dbErr("failed to update game %s: %w", g.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("game", g.ID)
	}
	return nil
}

// DeleteGame removes a game and its fundings, areas and items, and detaches
// its players, in one transaction.
func (b *Backend) DeleteGame(ctx context.Context, id string) error {
	err := b.db(ctx).Transaction(func(tx *gorm.DB) error {
		var areaIDs []string
		if err := tx.Model(&model.Area{}).Where("game_id = ?", id).Pluck("id", &areaIDs).Error; err != nil {
			return dbErr("failed to list areas of game %s: %w", id, err)
		}
		if len(areaIDs) > 0 {
			if err := tx.Where("area_id IN ?", areaIDs).Delete(&model.Item{}).Error; err != nil {
				return dbErr("failed to delete items of game %s: %w", id, err)
			}
		}
		if err := tx.Where("game_id = ?", id).Delete(&model.Area{}).Error; err != nil {
			return dbErr("failed to delete areas of game %s: %w", id, err)
		}
		if err := tx.Where("game_id = ?", id).Delete(&model.Funding{}).Error; err != nil {
			return dbErr("failed to delete fundings of game %s: %w", id, err)
		}
		if err := tx.Model(&model.Player{}).Where("game_id = ?", id).Update("game_id", "").Error; err != nil {
			return dbErr("failed to detach players of game %s: %w", id, err)
		}
		res := tx.Where("id = ?", id).Delete(&model.Game{})
		if res.Error != nil {
			return dbErr("failed to delete game %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound("game", id)
		}
		return nil
	})
	return unavailable(err)
}

////////////////////////
// FUNDINGS
////////////////////////

// CreateFunding inserts a pending funding for an existing game.
func (b *Backend) CreateFunding(ctx context.Context, f core.Funding) error {
	ok, err := exists(b.db(ctx), &model.Game{}, f.GameID)
	if err != nil {
		return dbErr("failed to check game %s: %w", f.GameID, err)
	}
	if !ok {
		return notFound("game", f.GameID)
	}
	row := convert.CoreToFunding(f)
	if err := b.db(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return dbErr("failed to insert funding: %w", err)
	}
	return nil
}

// GetFunding returns a funding by payment hash.
func (b *Backend) GetFunding(ctx context.Context, id string) (core.Funding, error) {
	var row model.Funding
	if err := b.db(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return core.Funding{}, lookupErr(err, "funding", id)
	}
	return convert.FundingToCore(row), nil
}

// ListFundings returns a game's fundings, oldest first.
func (b *Backend) ListFundings(ctx context.Context, gameID string) ([]core.Funding, error) {
	var rows []model.Funding
	if err := b.db(ctx).Where("game_id = ?", gameID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, dbErr("failed to list fundings: %w", err)
	}
	out := make([]core.Funding, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.FundingToCore(r))
	}
	return out, nil
}

// errAlreadyConfirmed rolls back a materialization that lost the race.
var errAlreadyConfirmed = errors.New("funding already confirmed")

// CommitMaterialization confirms a funding and writes its areas and items.
// The conditional UPDATE on confirmed=false is the compare-and-set that
// makes concurrent confirmations materialize exactly once.
func (b *Backend) CommitMaterialization(ctx context.Context, m storage.Materialization) (bool, error) {
	err := b.db(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Funding{}).
			Where("id = ? AND confirmed = ?", m.FundingID, false).
			Updates(map[string]any{"confirmed": true, "confirmed_at": m.ConfirmedAt})
		if res.Error != nil {
			return dbErr("failed to confirm funding %s: %w", m.FundingID, res.Error)
		}
		if res.RowsAffected == 0 {
			ok, err := exists(tx, &model.Funding{}, m.FundingID)
			if err != nil {
				return dbErr("failed to check funding %s: %w", m.FundingID, err)
			}
			if !ok {
				return notFound("funding", m.FundingID)
			}
			return errAlreadyConfirmed
		}

		areas := make([]model.Area, 0, len(m.Areas))
		var items []model.Item
		for _, a := range m.Areas {
			areas = append(areas, convert.CoreToArea(a.Area))
			for _, it := range a.Items {
				items = append(items, convert.CoreToItem(it))
			}
		}
		if len(areas) > 0 {
			if err := tx.Omit(clause.Associations).CreateInBatches(&areas, b.deps.BatchSize).Error; err != nil {
				return dbErr("failed to insert areas: %w", err)
			}
		}
		if len(items) > 0 {
			if err := tx.CreateInBatches(&items, b.deps.BatchSize).Error; err != nil {
				return dbErr("failed to insert items: %w", err)
			}
		}

		res = tx.Model(&model.Game{}).Where("id = ?", m.GameID).
			Update("amount", gorm.Expr("amount + ?", m.Amount))
		if res.Error != nil {
			return dbErr("failed to credit game %s: %w", m.GameID, res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound("game", m.GameID)
		}
		return nil
	})
	if errors.Is(err, errAlreadyConfirmed) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}
	return true, nil
}

////////////////////////
// AREAS AND ITEMS
////////////////////////

func areasToCore(rows []model.Area) []core.AreaWithItems {
	out := make([]core.AreaWithItems, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.AreaWithItemsToCore(r))
	}
	return out
}

// GetArea returns an area with its items.
func (b *Backend) GetArea(ctx context.Context, id string) (core.AreaWithItems, error) {
	var row model.Area
	if err := b.db(ctx).Preload("Items").Where("id = ?", id).First(&row).Error; err != nil {
		return core.AreaWithItems{}, lookupErr(err, "area", id)
	}
	return convert.AreaWithItemsToCore(row), nil
}

// ListAreas returns every area of a game with its items.
func (b *Backend) ListAreas(ctx context.Context, gameID string) ([]core.AreaWithItems, error) {
	var rows []model.Area
	if err := b.db(ctx).Preload("Items").Where("game_id = ?", gameID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, dbErr("failed to list areas: %w", err)
	}
	return areasToCore(rows), nil
}

// FindAreas prefilters on the lon/lat index with a bounding box, then keeps
// the rows whose great-circle distance is within radius.
func (b *Backend) FindAreas(ctx context.Context, center core.Coordinate, radius float64) ([]core.AreaWithItems, error) {
	sw, ne := geo.BoundingBox(center, radius)

	var rows []model.Area
	err := b.db(ctx).Preload("Items").
		Where("lon BETWEEN ? AND ? AND lat BETWEEN ? AND ?", sw.Lon, ne.Lon, sw.Lat, ne.Lat).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, dbErr("failed to find areas: %w", err)
	}

	out := make([]core.AreaWithItems, 0, len(rows))
	for _, r := range rows {
		a := convert.AreaWithItemsToCore(r)
		if geo.DistanceMeters(center, a.Area.Location) <= radius {
			out = append(out, a)
		}
	}
	return out, nil
}

// CreateItem adds an operator-authored item to an existing area.
func (b *Backend) CreateItem(ctx context.Context, it core.Item) error {
	ok, err := exists(b.db(ctx), &model.Area{}, it.AreaID)
	if err != nil {
		return dbErr("failed to check area %s: %w", it.AreaID, err)
	}
	if !ok {
		return notFound("area", it.AreaID)
	}
	row := convert.CoreToItem(it)
	if err := b.db(ctx).Create(&row).Error; err != nil {
		return dbErr("failed to insert item: %w", err)
	}
	return nil
}

// GetItem returns an item by id.
func (b *Backend) GetItem(ctx context.Context, id string) (core.Item, error) {
	var row model.Item
	if err := b.db(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return core.Item{}, lookupErr(err, "item", id)
	}
	return convert.ItemToCore(row), nil
}

// UpdateItem writes an item's descriptive fields while it is still
// uncollected. Collection state is only changed by CollectItem.
func (b *Backend) UpdateItem(ctx context.Context, it core.Item) error {
	row := convert.CoreToItem(it)
	res := b.db(ctx).Model(&model.Item{}).Where("id = ? AND collected = ?", it.ID, false).Updates(map[string]any{
		"type":       row.Type,
		"value":      row.Value,
		"appearance": row.Appearance,
		"data":       row.Data,
	})
	if res.Error != nil {
		return dbErr("failed to update item %s: %w", it.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		ok, err := exists(b.db(ctx), &model.Item{}, it.ID)
		if err != nil {
			return dbErr("failed to check item %s: %w", it.ID, err)
		}
		if !ok {
			return notFound("item", it.ID)
		}
		return fmt.Errorf("item %s: %w", it.ID, core.ErrAlreadyCollected)
	}
	return nil
}

// CollectItem flips collected=false to true for playerID and credits the
// player's balance in the same transaction.
func (b *Backend) CollectItem(ctx context.Context, itemID, playerID string, at time.Time) (core.Item, error) {
	var collected model.Item
	err := b.db(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Item{}).
			Where("id = ? AND collected = ?", itemID, false).
			Updates(map[string]any{"collected": true, "collected_by": playerID, "collected_at": at})
		if res.Error != nil {
			return dbErr("failed to collect item %s: %w", itemID, res.Error)
		}
		if res.RowsAffected == 0 {
			ok, err := exists(tx, &model.Item{}, itemID)
			if err != nil {
				return dbErr("failed to check item %s: %w", itemID, err)
			}
			if !ok {
				return notFound("item", itemID)
			}
			return fmt.Errorf("item %s: %w", itemID, core.ErrAlreadyCollected)
		}

		if err := tx.Where("id = ?", itemID).First(&collected).Error; err != nil {
			return lookupErr(err, "item", itemID)
		}

		res = tx.Model(&model.Player{}).Where("id = ?", playerID).
			Update("balance", gorm.Expr("balance + ?", collected.Value))
		if res.Error != nil {
			return dbErr("failed to credit player %s: %w", playerID, res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound("player", playerID)
		}
		return nil
	})
	if err != nil {
		return core.Item{}, unavailable(err)
	}
	return convert.ItemToCore(collected), nil
}

////////////////////////
// PLAYERS
////////////////////////

// CreatePlayer inserts a new player.
func (b *Backend) CreatePlayer(ctx context.Context, p core.Player) error {
	row := convert.CoreToPlayer(p)
	if err := b.db(ctx).Create(&row).Error; err != nil {
		return dbErr("failed to insert player: %w", err)
	}
	return nil
}

// GetPlayer returns a player by id.
func (b *Backend) GetPlayer(ctx context.Context, id string) (core.Player, error) {
	var row model.Player
	if err := b.db(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return core.Player{}, lookupErr(err, "player", id)
	}
	return convert.PlayerToCore(row), nil
}

// GetPlayerByKey returns the player owning a secret key.
func (b *Backend) GetPlayerByKey(ctx context.Context, inKey string) (core.Player, error) {
	var row model.Player
	if err := b.db(ctx).Where("in_key = ?", inKey).First(&row).Error; err != nil {
		return core.Player{}, lookupErr(err, "player", "by key")
	}
	return convert.PlayerToCore(row), nil
}

// UpdatePlayer writes a player's name and game association.
func (b *Backend) UpdatePlayer(ctx context.Context, p core.Player) error {
	res := b.db(ctx).Model(&model.Player{}).Where("id = ?", p.ID).Updates(map[string]any{
		"user_name": p.UserName,
		"game_id":   p.GameID,
	})
	if res.Error != nil {
		return dbErr("failed to update player %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("player", p.ID)
	}
	return nil
}

// ListPlayersByGames returns the players currently in any of the games.
func (b *Backend) ListPlayersByGames(ctx context.Context, gameIDs []string) ([]core.Player, error) {
	if len(gameIDs) == 0 {
		return []core.Player{}, nil
	}
	var rows []model.Player
	if err := b.db(ctx).Where("game_id IN ?", gameIDs).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, dbErr("failed to list players: %w", err)
	}
	out := make([]core.Player, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.PlayerToCore(r))
	}
	return out, nil
}
