// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"github.com/satoshigo/hunt/internal/geo"
	"github.com/satoshigo/hunt/internal/model"
	"github.com/satoshigo/hunt/pkg/core"
	"gorm.io/datatypes"
)

// dataToJSON converts free-form item data to datatypes.JSON for DB storage.
func dataToJSON(data string) datatypes.JSON {
	if data == "" {
		return nil
	}
	return datatypes.JSON(data)
}

// CoreToGame converts a core.Game to a GORM model.Game
func CoreToGame(g core.Game) model.Game {
	return model.Game{
		ID:          g.ID,
		Wallet:      g.Wallet,
		WalletKey:   g.WalletKey,
		Title:       g.Title,
		Description: g.Description,
		Amount:      g.Amount,
		CreatedAt:   g.CreatedAt,
	}
}

// CoreToFunding converts a core.Funding to a GORM model.Funding
func CoreToFunding(f core.Funding) model.Funding {
	return model.Funding{
		ID:             f.ID,
		GameID:         f.GameID,
		Wallet:         f.Wallet,
		Amount:         f.Amount,
		TopLeftLat:     f.TopLeft.Lat,
		TopLeftLon:     f.TopLeft.Lon,
		BottomRightLat: f.BottomRight.Lat,
		BottomRightLon: f.BottomRight.Lon,
		Bounds:         geo.BoundsRing(f.TopLeft, f.BottomRight),
		PaymentRequest: f.PaymentRequest,
		Confirmed:      f.Confirmed,
		CreatedAt:      f.CreatedAt,
		ConfirmedAt:    f.ConfirmedAt,
	}
}

// CoreToArea converts a core.Area to a GORM model.Area, projecting the
// location to 3857 for the geometry column.
func CoreToArea(a core.Area) model.Area {
	return model.Area{
		ID:        a.ID,
		GameID:    a.GameID,
		FundingID: a.FundingID,
		Lon:       a.Location.Lon,
		Lat:       a.Location.Lat,
		Location:  geo.ToWebMercator(a.Location),
		Radius:    a.Radius,
		CreatedAt: a.CreatedAt,
	}
}

// CoreToItem converts a core.Item to a GORM model.Item
func CoreToItem(i core.Item) model.Item {
	return model.Item{
		ID:          i.ID,
		AreaID:      i.AreaID,
		Type:        i.Type,
		Value:       i.Value,
		Appearance:  i.Appearance,
		Data:        dataToJSON(i.Data),
		Collected:   i.Collected,
		CollectedBy: i.CollectedBy,
		CollectedAt: i.CollectedAt,
	}
}

// CoreToPlayer converts a core.Player to a GORM model.Player
func CoreToPlayer(p core.Player) model.Player {
	return model.Player{
		ID:        p.ID,
		UserName:  p.UserName,
		InKey:     p.InKey,
		GameID:    p.GameID,
		Balance:   p.Balance,
		CreatedAt: p.CreatedAt,
	}
}
