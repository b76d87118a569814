package convert

import (
	"math"
	"testing"
	"time"

	"github.com/satoshigo/hunt/internal/geo"
	"github.com/satoshigo/hunt/internal/model"
	"github.com/satoshigo/hunt/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestGameRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	g := core.Game{ID: "g1", Wallet: "w1", WalletKey: "k1", Title: "Hunt", Description: "d", Amount: 42, CreatedAt: now}

	assert.Equal(t, g, GameToCore(CoreToGame(g)))
}

func TestCoreToFunding_Columns(t *testing.T) {
	f := core.Funding{
		ID:          "hash",
		GameID:      "g1",
		Amount:      100,
		TopLeft:     core.Coordinate{Lon: 13.40, Lat: 52.53},
		BottomRight: core.Coordinate{Lon: 13.41, Lat: 52.52},
	}

	m := CoreToFunding(f)
	assert.Equal(t, 52.53, m.TopLeftLat)
	assert.Equal(t, 13.40, m.TopLeftLon)
	assert.Equal(t, 52.52, m.BottomRightLat)
	assert.Equal(t, 13.41, m.BottomRightLon)
	assert.Equal(t, 5, m.Bounds.Coordinates().Length())

	back := FundingToCore(m)
	assert.Equal(t, f.TopLeft, back.TopLeft)
	assert.Equal(t, f.BottomRight, back.BottomRight)
	assert.False(t, back.Confirmed)
}

func TestCoreToArea_ProjectsLocation(t *testing.T) {
	a := core.Area{ID: "a1", GameID: "g1", FundingID: "h", Location: core.Coordinate{Lon: 0, Lat: 0}, Radius: 10}

	m := CoreToArea(a)
	xy, ok := m.Location.XY()
	require.True(t, ok)
	assert.InDelta(t, 0, xy.X, 1e-6)
	assert.InDelta(t, 0, xy.Y, 1e-6)
	assert.Equal(t, a, AreaToCore(m))
}

func TestAreaToCore_GeometryOnlyRow(t *testing.T) {
	want := core.Coordinate{Lon: 13.405, Lat: 52.52}
	m := model.Area{ID: "a1", Location: geo.ToWebMercator(want)}

	got := AreaToCore(m).Location
	assert.InDelta(t, want.Lon, got.Lon, 1e-9)
	assert.InDelta(t, want.Lat, got.Lat, 1e-9)

	assert.Equal(t, core.Coordinate{}, AreaToCore(model.Area{ID: "a2"}).Location)
}

func TestAreaWithItemsToCore(t *testing.T) {
	m := model.Area{
		ID:  "a1",
		Lon: 1, Lat: 2,
		Items: []model.Item{
			{ID: "i1", AreaID: "a1", Value: 5, Type: core.ItemTypeSimple},
			{ID: "i2", AreaID: "a1", Value: 5, Type: core.ItemTypeSimple},
		},
	}
	got := AreaWithItemsToCore(m)
	assert.Equal(t, core.Coordinate{Lon: 1, Lat: 2}, got.Area.Location)
	assert.Len(t, got.Items, 2)
	assert.Equal(t, int64(10), got.Value())
}

func TestItemData(t *testing.T) {
	assert.Nil(t, CoreToItem(core.Item{ID: "i1"}).Data)

	m := CoreToItem(core.Item{ID: "i1", Data: `{"clue":"bench"}`})
	assert.Equal(t, datatypes.JSON(`{"clue":"bench"}`), m.Data)
	assert.Equal(t, `{"clue":"bench"}`, ItemToCore(m).Data)

	assert.Equal(t, "", ItemToCore(model.Item{Data: datatypes.JSON("null")}).Data)
}

func TestPlayerRoundTrip(t *testing.T) {
	p := core.Player{ID: "p1", UserName: "alice", InKey: "secret", GameID: "g1", Balance: math.MaxInt32}
	assert.Equal(t, p, PlayerToCore(CoreToPlayer(p)))
}
