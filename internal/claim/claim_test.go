package claim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshigo/hunt/internal/dispatcher"
	"github.com/satoshigo/hunt/internal/storage"
	"github.com/satoshigo/hunt/internal/storage/memory"
	"github.com/satoshigo/hunt/pkg/core"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []dispatcher.Event
	err    error
}

func (r *recordingEmitter) Dispatch(e dispatcher.Event) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil, r.err
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var (
	now    = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	center = core.Coordinate{Lon: 13.4050, Lat: 52.5200}
)

// seed stores a game with one confirmed area holding two items and two players.
func seed(t *testing.T) storage.Backend {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Init())

	require.NoError(t, store.CreateGame(ctx, core.Game{ID: "g1", Wallet: "w1", CreatedAt: now}))
	require.NoError(t, store.CreateGame(ctx, core.Game{ID: "g2", Wallet: "w1", CreatedAt: now}))
	require.NoError(t, store.CreateFunding(ctx, core.Funding{ID: "f1", GameID: "g1", Wallet: "w1", Amount: 20, CreatedAt: now}))

	applied, err := store.CommitMaterialization(ctx, storage.Materialization{
		FundingID: "f1",
		GameID:    "g1",
		Amount:    20,
		Areas: []core.AreaWithItems{{
			Area: core.Area{ID: "a1", GameID: "g1", FundingID: "f1", Location: center, Radius: 10, CreatedAt: now},
			Items: []core.Item{
				{ID: "i1", AreaID: "a1", Type: core.ItemTypeSimple, Value: 10, Appearance: core.AppearanceCoin},
				{ID: "i2", AreaID: "a1", Type: core.ItemTypeSimple, Value: 10, Appearance: core.AppearanceCoin},
			},
		}},
		ConfirmedAt: now,
	})
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, store.CreatePlayer(ctx, core.Player{ID: "p1", UserName: "alice", InKey: "key-1", CreatedAt: now}))
	require.NoError(t, store.CreatePlayer(ctx, core.Player{ID: "p2", UserName: "bob", InKey: "key-2", CreatedAt: now}))
	return store
}

func newResolver(t *testing.T, store storage.Backend, events Emitter, proximity bool) *Resolver {
	t.Helper()
	r, err := New(Dependencies{
		Store:          store,
		Events:         events,
		ProximityCheck: proximity,
		Now:            func() time.Time { return now },
	})
	require.NoError(t, err)
	return r
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}

func TestEnterGame(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	r := newResolver(t, store, nil, false)

	game, player, err := r.EnterGame(ctx, "key-1", "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", game.ID)
	assert.Equal(t, "g1", player.GameID)

	// entering another game replaces the association
	_, _, err = r.EnterGame(ctx, "key-1", "g2")
	require.NoError(t, err)
	stored, err := store.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "g2", stored.GameID)
}

func TestEnterGameErrors(t *testing.T) {
	ctx := context.Background()
	r := newResolver(t, seed(t), nil, false)

	_, _, err := r.EnterGame(ctx, "  ", "g1")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, _, err = r.EnterGame(ctx, "nope", "g1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, _, err = r.EnterGame(ctx, "key-1", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	events := &recordingEmitter{}
	r := newResolver(t, store, events, false)

	item, err := r.Collect(ctx, "p1", "i1")
	require.NoError(t, err)
	assert.True(t, item.Collected)
	assert.Equal(t, "p1", item.CollectedBy)
	require.NotNil(t, item.CollectedAt)
	assert.True(t, now.Equal(*item.CollectedAt))

	p, err := store.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Balance)

	require.Equal(t, 1, events.count())
	e := events.events[0]
	assert.Equal(t, core.CmdItemCollected, e.Command)
	payload, ok := e.Payload.(core.ItemCollected)
	require.True(t, ok)
	assert.Equal(t, "g1", payload.GameID)
	assert.Equal(t, "p1", payload.PlayerID)
	assert.Equal(t, "i1", payload.Item.ID)
}

func TestCollectTwice(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	events := &recordingEmitter{}
	r := newResolver(t, store, events, false)

	_, err := r.Collect(ctx, "p1", "i1")
	require.NoError(t, err)

	_, err = r.Collect(ctx, "p2", "i1")
	assert.ErrorIs(t, err, core.ErrAlreadyCollected)
	assert.Equal(t, core.KindAlreadyCollected, core.KindOf(err))

	p2, err := store.GetPlayer(ctx, "p2")
	require.NoError(t, err)
	assert.Zero(t, p2.Balance)
	assert.Equal(t, 1, events.count())
}

func TestCollectConcurrentlyAwardsOnce(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	r := newResolver(t, store, &recordingEmitter{}, false)

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			player := "p1"
			if i%2 == 1 {
				player = "p2"
			}
			_, err := r.Collect(ctx, player, "i2")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, core.ErrAlreadyCollected):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(15), conflicts.Load())

	p1, err := store.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	p2, err := store.GetPlayer(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p1.Balance+p2.Balance)
}

func TestCollectMissing(t *testing.T) {
	ctx := context.Background()
	r := newResolver(t, seed(t), nil, false)

	_, err := r.Collect(ctx, "p1", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = r.Collect(ctx, "ghost", "i1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCollectEmitFailureKeepsAward(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	r := newResolver(t, store, &recordingEmitter{err: errors.New("closed")}, false)

	item, err := r.Collect(ctx, "p1", "i1")
	require.NoError(t, err)
	assert.True(t, item.Collected)
}

func TestCollectAtWithoutProximityCheck(t *testing.T) {
	ctx := context.Background()
	r := newResolver(t, seed(t), nil, false)

	far := core.Coordinate{Lon: 2.3522, Lat: 48.8566}
	_, err := r.CollectAt(ctx, "p1", "i1", far)
	assert.NoError(t, err)
}

func TestCollectAtProximity(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	r := newResolver(t, store, nil, true)

	// roughly 111m north
	far := core.Coordinate{Lon: center.Lon, Lat: center.Lat + 0.001}
	_, err := r.CollectAt(ctx, "p1", "i1", far)
	assert.ErrorIs(t, err, core.ErrOutOfRange)

	it, err := store.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.False(t, it.Collected)

	near := core.Coordinate{Lon: center.Lon, Lat: center.Lat + 0.00005}
	item, err := r.CollectAt(ctx, "p1", "i1", near)
	require.NoError(t, err)
	assert.True(t, item.Collected)

	_, err = r.CollectAt(ctx, "p1", "i2", core.Coordinate{Lon: 200, Lat: 0})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
