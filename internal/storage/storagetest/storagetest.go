// Package storagetest holds the behavioural suite every storage.Backend
// implementation runs from its own tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/satoshigo/hunt/internal/storage"
	"github.com/satoshigo/hunt/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, initialized backend for one subtest.
type Factory func(t *testing.T) storage.Backend

// Run executes the full suite against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b storage.Backend)
	}{
		{"GameCRUD", testGameCRUD},
		{"ListGamesByWallets", testListGamesByWallets},
		{"FundingLifecycle", testFundingLifecycle},
		{"CommitMaterialization", testCommitMaterialization},
		{"CommitMaterializationConcurrent", testCommitMaterializationConcurrent},
		{"FundingsAccumulate", testFundingsAccumulate},
		{"FindAreas", testFindAreas},
		{"OperatorItems", testOperatorItems},
		{"CollectItem", testCollectItem},
		{"CollectItemConcurrent", testCollectItemConcurrent},
		{"UpdateCollectedItem", testUpdateCollectedItem},
		{"Players", testPlayers},
		{"DeleteGameCascades", testDeleteGameCascades},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			tt.fn(t, b)
		})
	}
}

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func game(id, wallet string, offset int) core.Game {
	return core.Game{
		ID:        id,
		Wallet:    wallet,
		WalletKey: "key-" + wallet,
		Title:     "Game " + id,
		CreatedAt: base.Add(time.Duration(offset) * time.Minute),
	}
}

func funding(id, gameID string, amount int64) core.Funding {
	return core.Funding{
		ID:             id,
		GameID:         gameID,
		Wallet:         "w1",
		Amount:         amount,
		TopLeft:        core.Coordinate{Lon: 13.40, Lat: 52.53},
		BottomRight:    core.Coordinate{Lon: 13.41, Lat: 52.52},
		PaymentRequest: "lnbc" + id,
		CreatedAt:      base,
	}
}

// areas builds n areas of per items each, ids prefixed so batches never collide.
func areas(prefix, gameID, fundingID string, n, per int, value int64, at core.Coordinate) []core.AreaWithItems {
	out := make([]core.AreaWithItems, 0, n)
	for i := 0; i < n; i++ {
		areaID := fmt.Sprintf("%s-area-%d", prefix, i)
		a := core.AreaWithItems{Area: core.Area{
			ID:        areaID,
			GameID:    gameID,
			FundingID: fundingID,
			Location:  at,
			Radius:    10,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}}
		for j := 0; j < per; j++ {
			a.Items = append(a.Items, core.Item{
				ID:         fmt.Sprintf("%s-item-%d-%d", prefix, i, j),
				AreaID:     areaID,
				Type:       core.ItemTypeSimple,
				Value:      value,
				Appearance: core.AppearanceCoin,
			})
		}
		out = append(out, a)
	}
	return out
}

func player(id, key string) core.Player {
	return core.Player{ID: id, UserName: "user-" + id, InKey: key, CreatedAt: base}
}

// seedMaterialized creates a game with one confirmed funding of 2 areas x 2 items worth 5 each.
func seedMaterialized(t *testing.T, b storage.Backend) []core.AreaWithItems {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.CreateGame(ctx, game("g1", "w1", 0)))
	require.NoError(t, b.CreateFunding(ctx, funding("h1", "g1", 20)))
	as := areas("h1", "g1", "h1", 2, 2, 5, core.Coordinate{Lon: 13.405, Lat: 52.525})
	applied, err := b.CommitMaterialization(ctx, storage.Materialization{
		FundingID: "h1", GameID: "g1", Amount: 20, Areas: as, ConfirmedAt: base,
	})
	require.NoError(t, err)
	require.True(t, applied)
	return as
}

func testGameCRUD(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	_, err := b.GetGame(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	g := game("g1", "w1", 0)
	g.Description = "find the coins"
	require.NoError(t, b.CreateGame(ctx, g))

	got, err := b.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Game g1", got.Title)
	assert.Equal(t, "find the coins", got.Description)
	assert.Equal(t, "w1", got.Wallet)
	assert.Equal(t, "key-w1", got.WalletKey)
	assert.Equal(t, int64(0), got.Amount)

	got.Title = "Renamed"
	got.Amount = 999
	require.NoError(t, b.UpdateGame(ctx, got))

	got, err = b.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, int64(0), got.Amount, "amount must not be writable through UpdateGame")

	assert.ErrorIs(t, b.UpdateGame(ctx, game("missing", "w1", 0)), core.ErrNotFound)

	require.NoError(t, b.CreateGame(ctx, game("g2", "w2", 1)))
	all, err := b.ListGames(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "g1", all[0].ID)
	assert.Equal(t, "g2", all[1].ID)

	require.NoError(t, b.DeleteGame(ctx, "g2"))
	assert.ErrorIs(t, b.DeleteGame(ctx, "g2"), core.ErrNotFound)
}

func testListGamesByWallets(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateGame(ctx, game("g1", "w1", 0)))
	require.NoError(t, b.CreateGame(ctx, game("g2", "w2", 1)))
	require.NoError(t, b.CreateGame(ctx, game("g3", "w3", 2)))

	got, err := b.ListGamesByWallets(ctx, []string{"w1", "w3"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "g1", got[0].ID)
	assert.Equal(t, "g3", got[1].ID)

	got, err = b.ListGamesByWallets(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testFundingLifecycle(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	err := b.CreateFunding(ctx, funding("h0", "missing", 10))
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, b.CreateGame(ctx, game("g1", "w1", 0)))
	require.NoError(t, b.CreateFunding(ctx, funding("h1", "g1", 30)))

	f, err := b.GetFunding(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "g1", f.GameID)
	assert.Equal(t, int64(30), f.Amount)
	assert.False(t, f.Confirmed)
	assert.Nil(t, f.ConfirmedAt)
	assert.Equal(t, core.Coordinate{Lon: 13.40, Lat: 52.53}, f.TopLeft)
	assert.Equal(t, core.Coordinate{Lon: 13.41, Lat: 52.52}, f.BottomRight)
	assert.Equal(t, "lnbch1", f.PaymentRequest)

	_, err = b.GetFunding(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	list, err := b.ListFundings(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "h1", list[0].ID)
}

func testCommitMaterialization(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	as := seedMaterialized(t, b)

	f, err := b.GetFunding(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, f.Confirmed)
	require.NotNil(t, f.ConfirmedAt)

	g, err := b.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), g.Amount)

	stored, err := b.ListAreas(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, a := range stored {
		assert.Len(t, a.Items, 2)
		assert.Equal(t, int64(10), a.Value())
		assert.Equal(t, "h1", a.Area.FundingID)
		assert.InDelta(t, 13.405, a.Area.Location.Lon, 1e-9)
		assert.InDelta(t, 52.525, a.Area.Location.Lat, 1e-9)
	}

	// a second commit for the same funding is a no-op
	again := areas("retry", "g1", "h1", 2, 2, 5, core.Coordinate{Lon: 13.405, Lat: 52.525})
	applied, err := b.CommitMaterialization(ctx, storage.Materialization{
		FundingID: "h1", GameID: "g1", Amount: 20, Areas: again, ConfirmedAt: base,
	})
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err = b.ListAreas(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	g, err = b.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), g.Amount)

	one, err := b.GetArea(ctx, as[0].Area.ID)
	require.NoError(t, err)
	assert.Len(t, one.Items, 2)

	_, err = b.GetArea(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = b.CommitMaterialization(ctx, storage.Materialization{FundingID: "missing", GameID: "g1"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testCommitMaterializationConcurrent(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateGame(ctx, game("g1", "w1", 0)))
	require.NoError(t, b.CreateFunding(ctx, funding("h1", "g1", 100)))

	const workers = 8
	var (
		wg      sync.WaitGroup
		applied atomic.Int32
		failed  atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			as := areas(fmt.Sprintf("w%d", i), "g1", "h1", 10, 2, 5, core.Coordinate{Lon: 1, Lat: 1})
			ok, err := b.CommitMaterialization(ctx, storage.Materialization{
				FundingID: "h1", GameID: "g1", Amount: 100, Areas: as, ConfirmedAt: base,
			})
			if err != nil {
				failed.Add(1)
				return
			}
			if ok {
				applied.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(0), failed.Load())
	assert.Equal(t, int32(1), applied.Load())

	stored, err := b.ListAreas(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, stored, 10)

	g, err := b.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), g.Amount)
}

func testFundingsAccumulate(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateGame(ctx, game("g1", "w1", 0)))
	require.NoError(t, b.CreateFunding(ctx, funding("h1", "g1", 30)))
	require.NoError(t, b.CreateFunding(ctx, funding("h2", "g1", 200)))

	at := core.Coordinate{Lon: 13.405, Lat: 52.525}
	for _, m := range []storage.Materialization{
		{FundingID: "h1", GameID: "g1", Amount: 30, Areas: areas("h1", "g1", "h1", 4, 1, 7, at), ConfirmedAt: base},
		{FundingID: "h2", GameID: "g1", Amount: 200, Areas: areas("h2", "g1", "h2", 10, 2, 10, at), ConfirmedAt: base},
	} {
		applied, err := b.CommitMaterialization(ctx, m)
		require.NoError(t, err)
		require.True(t, applied)
	}

	g, err := b.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(230), g.Amount)

	stored, err := b.ListAreas(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, stored, 14)
}

func testFindAreas(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateGame(ctx, game("g1", "w1", 0)))
	require.NoError(t, b.CreateFunding(ctx, funding("h1", "g1", 20)))

	near := areas("near", "g1", "h1", 1, 1, 5, core.Coordinate{Lon: 13.4050, Lat: 52.5200})
	// ~700m north of the query point
	far := areas("far", "g1", "h1", 1, 1, 5, core.Coordinate{Lon: 13.4050, Lat: 52.5263})
	_, err := b.CommitMaterialization(ctx, storage.Materialization{
		FundingID: "h1", GameID: "g1", Amount: 20, Areas: append(near, far...), ConfirmedAt: base,
	})
	require.NoError(t, err)

	center := core.Coordinate{Lon: 13.4051, Lat: 52.5201}

	got, err := b.FindAreas(ctx, center, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "near-area-0", got[0].Area.ID)
	assert.Len(t, got[0].Items, 1)

	got, err = b.FindAreas(ctx, center, 1000)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = b.FindAreas(ctx, core.Coordinate{Lon: -70, Lat: -30}, 1000)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testOperatorItems(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	as := seedMaterialized(t, b)

	err := b.CreateItem(ctx, core.Item{ID: "op1", AreaID: "missing", Type: core.ItemTypeSimple, Value: 1})
	assert.ErrorIs(t, err, core.ErrNotFound)

	it := core.Item{ID: "op1", AreaID: as[0].Area.ID, Type: core.ItemTypeSimple, Value: 7, Appearance: "chest", Data: `{"riddle":"under the bridge"}`}
	require.NoError(t, b.CreateItem(ctx, it))

	got, err := b.GetItem(ctx, "op1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Value)
	assert.Equal(t, "chest", got.Appearance)
	assert.JSONEq(t, `{"riddle":"under the bridge"}`, got.Data)
	assert.False(t, got.Collected)

	got.Value = 9
	got.Data = `{"riddle":"over the bridge"}`
	require.NoError(t, b.UpdateItem(ctx, got))

	got, err = b.GetItem(ctx, "op1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.Value)
	assert.JSONEq(t, `{"riddle":"over the bridge"}`, got.Data)

	area, err := b.GetArea(ctx, as[0].Area.ID)
	require.NoError(t, err)
	assert.Len(t, area.Items, 3)

	assert.ErrorIs(t, b.UpdateItem(ctx, core.Item{ID: "missing"}), core.ErrNotFound)
	_, err = b.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testCollectItem(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	as := seedMaterialized(t, b)
	itemID := as[0].Items[0].ID

	require.NoError(t, b.CreatePlayer(ctx, player("p1", "k1")))
	require.NoError(t, b.CreatePlayer(ctx, player("p2", "k2")))

	// missing player leaves the item untouched
	_, err := b.CollectItem(ctx, itemID, "missing", base)
	assert.ErrorIs(t, err, core.ErrNotFound)
	it, err := b.GetItem(ctx, itemID)
	require.NoError(t, err)
	assert.False(t, it.Collected)

	got, err := b.CollectItem(ctx, itemID, "p1", base)
	require.NoError(t, err)
	assert.True(t, got.Collected)
	assert.Equal(t, "p1", got.CollectedBy)
	require.NotNil(t, got.CollectedAt)
	assert.Equal(t, int64(5), got.Value)

	p, err := b.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Balance)

	_, err = b.CollectItem(ctx, itemID, "p2", base)
	assert.ErrorIs(t, err, core.ErrAlreadyCollected)
	p2, err := b.GetPlayer(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p2.Balance)

	_, err = b.CollectItem(ctx, "missing", "p1", base)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testCollectItemConcurrent(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	as := seedMaterialized(t, b)
	itemID := as[1].Items[1].ID

	const players = 10
	for i := 0; i < players; i++ {
		require.NoError(t, b.CreatePlayer(ctx, player(fmt.Sprintf("p%d", i), fmt.Sprintf("k%d", i))))
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		collected atomic.Int32
	)
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.CollectItem(ctx, itemID, fmt.Sprintf("p%d", i), base)
			switch {
			case err == nil:
				successes.Add(1)
			case assert.ErrorIs(t, err, core.ErrAlreadyCollected):
				collected.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(players-1), collected.Load())

	var total int64
	for i := 0; i < players; i++ {
		p, err := b.GetPlayer(ctx, fmt.Sprintf("p%d", i))
		require.NoError(t, err)
		total += p.Balance
	}
	assert.Equal(t, int64(5), total)
}

func testUpdateCollectedItem(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	as := seedMaterialized(t, b)
	it := as[0].Items[0]
	require.NoError(t, b.CreatePlayer(ctx, player("p1", "k1")))

	_, err := b.CollectItem(ctx, it.ID, "p1", base)
	require.NoError(t, err)

	// a stale copy read before the collect must not rewrite the awarded item
	it.Value = 500
	err = b.UpdateItem(ctx, it)
	assert.ErrorIs(t, err, core.ErrAlreadyCollected)

	got, err := b.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Value)
	assert.True(t, got.Collected)
	assert.Equal(t, "p1", got.CollectedBy)
}

func testPlayers(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateGame(ctx, game("g1", "w1", 0)))
	require.NoError(t, b.CreateGame(ctx, game("g2", "w2", 1)))

	require.NoError(t, b.CreatePlayer(ctx, player("p1", "k1")))
	require.NoError(t, b.CreatePlayer(ctx, player("p2", "k2")))
	assert.Error(t, b.CreatePlayer(ctx, player("p3", "k1")), "duplicate key must be rejected")

	p, err := b.GetPlayerByKey(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, "p2", p.ID)

	_, err = b.GetPlayerByKey(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = b.GetPlayer(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)

	p.GameID = "g2"
	p.UserName = "renamed"
	p.Balance = 1000
	require.NoError(t, b.UpdatePlayer(ctx, p))

	p, err = b.GetPlayer(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "renamed", p.UserName)
	assert.Equal(t, "g2", p.GameID)
	assert.Equal(t, int64(0), p.Balance, "balance must not be writable through UpdatePlayer")

	assert.ErrorIs(t, b.UpdatePlayer(ctx, player("nope", "x")), core.ErrNotFound)

	list, err := b.ListPlayersByGames(ctx, []string{"g1", "g2"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p2", list[0].ID)

	list, err = b.ListPlayersByGames(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testDeleteGameCascades(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	as := seedMaterialized(t, b)

	p := player("p1", "k1")
	require.NoError(t, b.CreatePlayer(ctx, p))
	p.GameID = "g1"
	require.NoError(t, b.UpdatePlayer(ctx, p))

	require.NoError(t, b.DeleteGame(ctx, "g1"))

	_, err := b.GetGame(ctx, "g1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = b.GetFunding(ctx, "h1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = b.GetArea(ctx, as[0].Area.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = b.GetItem(ctx, as[0].Items[0].ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	got, err := b.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "", got.GameID)
}
