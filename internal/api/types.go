package api

import (
	"time"

	"github.com/satoshigo/hunt/internal/geo"
	"github.com/satoshigo/hunt/pkg/core"
	"github.com/satoshigo/hunt/pkg/streaming"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// GameRequest creates or updates a game.
type GameRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// GameResponse is a game as shown to clients. The wallet key never leaves
// the server.
type GameResponse struct {
	ID          string    `json:"id"`
	Wallet      string    `json:"wallet"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"time"`
}

func gameResponse(g core.Game) GameResponse {
	return GameResponse{
		ID:          g.ID,
		Wallet:      g.Wallet,
		Title:       g.Title,
		Description: g.Description,
		Amount:      g.Amount,
		CreatedAt:   g.CreatedAt,
	}
}

func gameResponses(games []core.Game) []GameResponse {
	out := make([]GameResponse, 0, len(games))
	for _, g := range games {
		out = append(out, gameResponse(g))
	}
	return out
}

// FundingRequest asks for a funding invoice. Corners may be given in any
// orientation, either as the four scalar fields or as Bounds in the form
// "[[lon,lat],[lon,lat]]", which takes precedence.
type FundingRequest struct {
	GameID string  `json:"game_id"`
	TopLat float64 `json:"tplat"`
	TopLon float64 `json:"tplon"`
	BotLat float64 `json:"btlat"`
	BotLon float64 `json:"btlon"`
	Bounds string  `json:"bounds,omitempty"`
	Sats   int64   `json:"sats"`
}

func (r FundingRequest) corners() (core.Coordinate, core.Coordinate, error) {
	if r.Bounds != "" {
		return geo.ParseBounds(r.Bounds)
	}
	return core.Coordinate{Lon: r.TopLon, Lat: r.TopLat}, core.Coordinate{Lon: r.BotLon, Lat: r.BotLat}, nil
}

// FundingResponse is a stored funding.
type FundingResponse struct {
	PaymentHash    string               `json:"payment_hash"`
	GameID         string               `json:"game_id"`
	Wallet         string               `json:"wallet"`
	Amount         int64                `json:"amount"`
	TopLeft        streaming.Coordinate `json:"top_left"`
	BottomRight    streaming.Coordinate `json:"bottom_right"`
	PaymentRequest string               `json:"payment_request,omitempty"`
	Confirmed      bool                 `json:"confirmed"`
	CreatedAt      time.Time            `json:"time"`
	ConfirmedAt    *time.Time           `json:"confirmed_at,omitempty"`
}

func fundingResponse(f core.Funding) FundingResponse {
	return FundingResponse{
		PaymentHash:    f.ID,
		GameID:         f.GameID,
		Wallet:         f.Wallet,
		Amount:         f.Amount,
		TopLeft:        streaming.FromCoordinate(f.TopLeft),
		BottomRight:    streaming.FromCoordinate(f.BottomRight),
		PaymentRequest: f.PaymentRequest,
		Confirmed:      f.Confirmed,
		CreatedAt:      f.CreatedAt,
		ConfirmedAt:    f.ConfirmedAt,
	}
}

// FundingCreatedResponse carries the invoice the payer has to settle.
type FundingCreatedResponse struct {
	Funding        FundingResponse `json:"funding"`
	PaymentRequest string          `json:"payment_request"`
}

// FundingStatusResponse is the result of a funding poll.
type FundingStatusResponse struct {
	PaymentHash  string `json:"payment_hash"`
	Paid         bool   `json:"paid"`
	Confirmed    bool   `json:"confirmed"`
	AreasCreated int    `json:"areas_created"`
}

// ItemRequest creates or updates an operator item. AreaID is ignored on
// update.
type ItemRequest struct {
	AreaID     string `json:"area_id"`
	Type       string `json:"item_type"`
	Value      int64  `json:"value"`
	Appearance string `json:"appearance"`
	Data       string `json:"data"`
}

// CollectRequest claims an item. The position is required only when the
// server enforces proximity.
type CollectRequest struct {
	InKey string   `json:"inkey"`
	Lon   *float64 `json:"lon,omitempty"`
	Lat   *float64 `json:"lat,omitempty"`
}

// FindAreasRequest searches areas around a point. At, in the form "lon,lat",
// overrides Lon and Lat.
type FindAreasRequest struct {
	Lon    float64 `json:"lon"`
	Lat    float64 `json:"lat"`
	At     string  `json:"at,omitempty"`
	Radius float64 `json:"radius"`
}

func (r FindAreasRequest) center() (core.Coordinate, error) {
	if r.At != "" {
		return geo.ParseCoordinate(r.At)
	}
	return core.Coordinate{Lon: r.Lon, Lat: r.Lat}, nil
}

func areaResponses(areas []core.AreaWithItems) []streaming.AreaPayload {
	out := make([]streaming.AreaPayload, 0, len(areas))
	for _, a := range areas {
		out = append(out, streaming.FromArea(a))
	}
	return out
}

// PlayerRequest registers or renames a player.
type PlayerRequest struct {
	UserName string `json:"user_name"`
}

// PlayerResponse is a player. InKey is only filled for the player's own
// requests.
type PlayerResponse struct {
	ID        string    `json:"id"`
	UserName  string    `json:"user_name"`
	InKey     string    `json:"inkey,omitempty"`
	GameID    string    `json:"game_id,omitempty"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"time"`
}

func playerResponse(p core.Player, withKey bool) PlayerResponse {
	r := PlayerResponse{
		ID:        p.ID,
		UserName:  p.UserName,
		GameID:    p.GameID,
		Balance:   p.Balance,
		CreatedAt: p.CreatedAt,
	}
	if withKey {
		r.InKey = p.InKey
	}
	return r
}

// EnterRequest joins a player to a game.
type EnterRequest struct {
	InKey string `json:"inkey"`
}

// EnterResponse is returned after a player entered a game.
type EnterResponse struct {
	Game   GameResponse   `json:"game"`
	Player PlayerResponse `json:"player"`
}

// HealthResponse reports liveness and a few queue figures.
type HealthResponse struct {
	Status          string `json:"status"`
	Uptime          string `json:"uptime"`
	PendingFundings int    `json:"pending_fundings"`
}
