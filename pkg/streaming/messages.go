package streaming

import (
	"encoding/json"
	"time"

	"github.com/satoshigo/hunt/pkg/core"
)

// Message type constants matching the broadcast protocol.
const (
	TypeAreaCreated      = "area_created"
	TypeFundingConfirmed = "funding_confirmed"
	TypeItemCollected    = "item_collected"
	TypeSubscribe        = "subscribe"
	TypeAck              = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	GameID  string          `json:"game_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// SubscribePayload is sent by clients to restrict the feed to one game.
// An empty GameID subscribes to every game.
type SubscribePayload struct {
	GameID string `json:"game_id"`
}

// Coordinate is the wire form of core.Coordinate.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// ItemPayload is the wire form of an item. Data is passed through verbatim.
type ItemPayload struct {
	ID          string          `json:"id"`
	AreaID      string          `json:"area_id"`
	Type        string          `json:"item_type"`
	Value       int64           `json:"value"`
	Appearance  string          `json:"appearance"`
	Data        json.RawMessage `json:"data,omitempty"`
	Collected   bool            `json:"collected"`
	CollectedBy string          `json:"collected_by,omitempty"`
	CollectedAt *time.Time      `json:"collected_at,omitempty"`
}

// AreaPayload is broadcast for every newly materialized area.
type AreaPayload struct {
	ID        string        `json:"id"`
	GameID    string        `json:"game_id"`
	FundingID string        `json:"funding_id"`
	Location  Coordinate    `json:"location"`
	Radius    float64       `json:"radius"`
	CreatedAt time.Time     `json:"time"`
	Items     []ItemPayload `json:"items"`
}

// FundingConfirmedPayload announces that a funding became playable.
type FundingConfirmedPayload struct {
	PaymentHash  string `json:"payment_hash"`
	GameID       string `json:"game_id"`
	Amount       int64  `json:"amount"`
	AreaCount    int    `json:"areas"`
	ItemsPerArea int    `json:"items_per_area"`
	PerItemValue int64  `json:"item_value"`
	Unallocated  int64  `json:"unallocated"`
}

// ItemCollectedPayload announces a claimed item.
type ItemCollectedPayload struct {
	Item     ItemPayload `json:"item"`
	PlayerID string      `json:"player_id"`
}

// FromCoordinate converts a core coordinate to its wire form.
func FromCoordinate(c core.Coordinate) Coordinate {
	return Coordinate{Lon: c.Lon, Lat: c.Lat}
}

// FromItem converts a core item to its wire form.
func FromItem(it core.Item) ItemPayload {
	p := ItemPayload{
		ID:          it.ID,
		AreaID:      it.AreaID,
		Type:        it.Type,
		Value:       it.Value,
		Appearance:  it.Appearance,
		Collected:   it.Collected,
		CollectedBy: it.CollectedBy,
		CollectedAt: it.CollectedAt,
	}
	if it.Data != "" && json.Valid([]byte(it.Data)) {
		p.Data = json.RawMessage(it.Data)
	}
	return p
}

// FromArea converts an area and its items to its wire form.
func FromArea(a core.AreaWithItems) AreaPayload {
	items := make([]ItemPayload, 0, len(a.Items))
	for _, it := range a.Items {
		items = append(items, FromItem(it))
	}
	return AreaPayload{
		ID:        a.Area.ID,
		GameID:    a.Area.GameID,
		FundingID: a.Area.FundingID,
		Location:  FromCoordinate(a.Area.Location),
		Radius:    a.Area.Radius,
		CreatedAt: a.Area.CreatedAt,
		Items:     items,
	}
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(msgType, gameID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, GameID: gameID, Payload: raw}, nil
}
