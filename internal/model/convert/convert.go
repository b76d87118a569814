// Package convert provides functions to convert GORM models to core models
package convert

import (
	"github.com/satoshigo/hunt/internal/geo"
	"github.com/satoshigo/hunt/internal/model"
	"github.com/satoshigo/hunt/pkg/core"
)

// GameToCore converts a GORM Game to a core.Game
func GameToCore(g model.Game) core.Game {
	return core.Game{
		ID:          g.ID,
		Wallet:      g.Wallet,
		WalletKey:   g.WalletKey,
		Title:       g.Title,
		Description: g.Description,
		Amount:      g.Amount,
		CreatedAt:   g.CreatedAt,
	}
}

// FundingToCore converts a GORM Funding to a core.Funding.
// The stored bounds outline is derived data and is not read back.
func FundingToCore(f model.Funding) core.Funding {
	return core.Funding{
		ID:             f.ID,
		GameID:         f.GameID,
		Wallet:         f.Wallet,
		Amount:         f.Amount,
		TopLeft:        core.Coordinate{Lon: f.TopLeftLon, Lat: f.TopLeftLat},
		BottomRight:    core.Coordinate{Lon: f.BottomRightLon, Lat: f.BottomRightLat},
		PaymentRequest: f.PaymentRequest,
		Confirmed:      f.Confirmed,
		CreatedAt:      f.CreatedAt,
		ConfirmedAt:    f.ConfirmedAt,
	}
}

// AreaToCore converts a GORM Area to a core.Area
func AreaToCore(a model.Area) core.Area {
	return core.Area{
		ID:        a.ID,
		GameID:    a.GameID,
		FundingID: a.FundingID,
		Location:  areaLocation(a),
		Radius:    a.Radius,
		CreatedAt: a.CreatedAt,
	}
}

// areaLocation reads the lon/lat columns, falling back to the projected
// point for rows that only carry the geometry.
func areaLocation(a model.Area) core.Coordinate {
	if a.Lon != 0 || a.Lat != 0 {
		return core.Coordinate{Lon: a.Lon, Lat: a.Lat}
	}
	if xy, ok := a.Location.XY(); ok && (xy.X != 0 || xy.Y != 0) {
		return geo.FromPoint(a.Location)
	}
	return core.Coordinate{}
}

// AreaWithItemsToCore converts a GORM Area with preloaded Items
func AreaWithItemsToCore(a model.Area) core.AreaWithItems {
	items := make([]core.Item, 0, len(a.Items))
	for _, it := range a.Items {
		items = append(items, ItemToCore(it))
	}
	return core.AreaWithItems{Area: AreaToCore(a), Items: items}
}

// ItemToCore converts a GORM Item to a core.Item
func ItemToCore(i model.Item) core.Item {
	var data string
	if len(i.Data) > 0 && string(i.Data) != "null" {
		data = string(i.Data)
	}
	return core.Item{
		ID:          i.ID,
		AreaID:      i.AreaID,
		Type:        i.Type,
		Value:       i.Value,
		Appearance:  i.Appearance,
		Data:        data,
		Collected:   i.Collected,
		CollectedBy: i.CollectedBy,
		CollectedAt: i.CollectedAt,
	}
}

// PlayerToCore converts a GORM Player to a core.Player
func PlayerToCore(p model.Player) core.Player {
	return core.Player{
		ID:        p.ID,
		UserName:  p.UserName,
		InKey:     p.InKey,
		GameID:    p.GameID,
		Balance:   p.Balance,
		CreatedAt: p.CreatedAt,
	}
}
