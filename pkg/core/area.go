// pkg/core/area.go
package core

import "time"

// Item types and appearances
const (
	ItemTypeSimple = "simple"
	AppearanceCoin = "coin"
)

// Area is a capture zone created when a funding is materialized.
type Area struct {
	ID        string
	GameID    string
	FundingID string
	Location  Coordinate
	Radius    float64
	CreatedAt time.Time
}

// Item is a single collectible unit of value inside an area.
type Item struct {
	ID          string
	AreaID      string
	Type        string
	Value       int64
	Appearance  string
	Data        string // free-form JSON for operator-authored items
	Collected   bool
	CollectedBy string
	CollectedAt *time.Time
}

// AreaWithItems groups an area with the items placed in it.
type AreaWithItems struct {
	Area  Area
	Items []Item
}

// Value returns the total sats held by the area's items.
func (a AreaWithItems) Value() int64 {
	var total int64
	for _, it := range a.Items {
		total += it.Value
	}
	return total
}

// Player is a registered hunter.
type Player struct {
	ID        string
	UserName  string
	InKey     string
	GameID    string
	Balance   int64
	CreatedAt time.Time
}
