// pkg/core/game.go
package core

import "time"

// Coordinate is a WGS84 longitude/latitude pair in degrees.
type Coordinate struct {
	Lon float64
	Lat float64
}

// Game is a funded treasure-hunt session owned by an operator wallet.
type Game struct {
	ID          string
	Wallet      string
	WalletKey   string // invoice key used to bill fundings; never exposed
	Title       string
	Description string
	Amount      int64 // accumulated confirmed sats
	CreatedAt   time.Time
}

// Funding is one payment that seeds a game with collectible value.
// ID is the invoice payment hash.
type Funding struct {
	ID             string
	GameID         string
	Wallet         string
	Amount         int64
	TopLeft        Coordinate
	BottomRight    Coordinate
	PaymentRequest string
	Confirmed      bool
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
}

// FundingStatus is the result of polling a funding invoice.
// Paid=false is the pending state, not an error.
type FundingStatus struct {
	PaymentHash  string
	Paid         bool
	Confirmed    bool
	AreasCreated int
}
