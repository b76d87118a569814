package export

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshigo/hunt/internal/storage"
	"github.com/satoshigo/hunt/internal/storage/memory"
	"github.com/satoshigo/hunt/pkg/core"
)

var at = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) *memory.Backend {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Init())

	require.NoError(t, store.CreateGame(ctx, core.Game{ID: "g1", Wallet: "w1", WalletKey: "secret", Title: "City Hunt: Mitte", CreatedAt: at}))
	require.NoError(t, store.CreateFunding(ctx, core.Funding{
		ID: "h1", GameID: "g1", Wallet: "w1", Amount: 30, PaymentRequest: "lnbc1",
		TopLeft: core.Coordinate{Lon: 13.38, Lat: 52.53}, BottomRight: core.Coordinate{Lon: 13.42, Lat: 52.50},
		CreatedAt: at,
	}))

	applied, err := store.CommitMaterialization(ctx, storage.Materialization{
		FundingID: "h1",
		GameID:    "g1",
		Amount:    30,
		Areas: []core.AreaWithItems{{
			Area: core.Area{ID: "a1", GameID: "g1", FundingID: "h1", Location: core.Coordinate{Lon: 13.4, Lat: 52.51}, Radius: 10, CreatedAt: at},
			Items: []core.Item{
				{ID: "i1", AreaID: "a1", Type: core.ItemTypeSimple, Value: 3, Appearance: core.AppearanceCoin},
				{ID: "i2", AreaID: "a1", Type: core.ItemTypeSimple, Value: 3, Appearance: core.AppearanceCoin},
			},
		}},
		ConfirmedAt: at,
	})
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, store.CreatePlayer(ctx, core.Player{ID: "p1", UserName: "alice", InKey: "k1", CreatedAt: at}))
	_, err = store.CollectItem(ctx, "i1", "p1", at)
	require.NoError(t, err)
	return store
}

func TestBuild(t *testing.T) {
	doc, err := Build(context.Background(), seed(t), "g1", at)
	require.NoError(t, err)

	assert.Equal(t, "g1", doc.Game.ID)
	assert.Equal(t, int64(30), doc.Game.Amount)
	require.Len(t, doc.Fundings, 1)
	assert.True(t, doc.Fundings[0].Confirmed)
	assert.Equal(t, "h1", doc.Fundings[0].PaymentHash)
	require.Len(t, doc.Areas, 1)
	assert.Len(t, doc.Areas[0].Items, 2)
	assert.Equal(t, int64(3), doc.Collected)
	assert.Equal(t, int64(3), doc.Uncollected)
}

func TestBuildMissingGame(t *testing.T) {
	_, err := Build(context.Background(), memory.New(), "nope", at)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestWriteRead(t *testing.T) {
	doc, err := Build(context.Background(), seed(t), "g1", at)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc))
	assert.NotContains(t, buf.String(), "secret")

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, doc.Game.ID, got.Game.ID)
	assert.Equal(t, doc.Game.Title, got.Game.Title)
	assert.True(t, doc.Game.CreatedAt.Equal(got.Game.CreatedAt))
	assert.Equal(t, doc.Collected, got.Collected)
	require.Len(t, got.Areas, 1)
	assert.Equal(t, "a1", got.Areas[0].ID)
}

func TestReadRejectsPlainJSON(t *testing.T) {
	_, err := Read(bytes.NewBufferString(`{"game":{}}`))
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	doc := Document{ExportedAt: at, Game: Game{Title: "City Hunt: Mitte/Nord"}}
	assert.Equal(t, "City_Hunt__Mitte_Nord_20240601_120000.json.gz", FileName(doc))
}

func TestToFile(t *testing.T) {
	dir := t.TempDir()
	path, err := ToFile(context.Background(), seed(t), "g1", dir, at)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	doc, err := Read(f)
	require.NoError(t, err)
	assert.Equal(t, "City Hunt: Mitte", doc.Game.Title)
}
