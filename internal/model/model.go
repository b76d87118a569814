package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Game{},
	&Funding{},
	&Area{},
	&Item{},
	&Player{},
}

////////////////////////
// GAME MODELS
////////////////////////

// Game is a treasure hunt owned by an operator wallet
type Game struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Wallet      string    `json:"wallet" gorm:"size:64;index:idx_game_wallet"`
	WalletKey   string    `json:"-" gorm:"size:128"`
	Title       string    `json:"title" gorm:"size:255"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount" gorm:"default:0"`
	CreatedAt   time.Time `json:"time" gorm:"type:timestamptz"`
}

func (*Game) TableName() string {
	return "satoshigo_games"
}

// Funding is a payment into a game. ID is the invoice payment hash.
type Funding struct {
	ID             string          `json:"id" gorm:"primaryKey;size:128"`
	GameID         string          `json:"game_id" gorm:"size:36;index:idx_funding_game_id"`
	Game           Game            `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:GameID;"`
	Wallet         string          `json:"wallet" gorm:"size:64"`
	Amount         int64           `json:"amount"`
	TopLeftLat     float64         `json:"tplat" gorm:"column:tplat"`
	TopLeftLon     float64         `json:"tplon" gorm:"column:tplon"`
	BottomRightLat float64         `json:"btlat" gorm:"column:btlat"`
	BottomRightLon float64         `json:"btlon" gorm:"column:btlon"`
	Bounds         geom.LineString `json:"bounds"` // 3857 outline of the funded rectangle
	PaymentRequest string          `json:"payment_request"`
	Confirmed      bool            `json:"confirmed" gorm:"default:false;index:idx_funding_confirmed"`
	CreatedAt      time.Time       `json:"time" gorm:"type:timestamptz"`
	ConfirmedAt    *time.Time      `json:"confirmed_at" gorm:"type:timestamptz"`
}

func (*Funding) TableName() string {
	return "satoshigo_fundings"
}

// Area is a capture zone. Lon/Lat are kept next to the projected point so
// radius prefilters work on backends without spatial functions.
type Area struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"`
	GameID    string     `json:"game_id" gorm:"size:36;index:idx_area_game_id"`
	Game      Game       `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:GameID;"`
	FundingID string     `json:"funding_id" gorm:"size:128;index:idx_area_funding_id"`
	Lon       float64    `json:"lon" gorm:"index:idx_area_lon_lat,priority:1"`
	Lat       float64    `json:"lat" gorm:"index:idx_area_lon_lat,priority:2"`
	Location  geom.Point `json:"location"` // EPSG:3857
	Radius    float64    `json:"radius" gorm:"default:10"`
	CreatedAt time.Time  `json:"time" gorm:"type:timestamptz"`
	Items     []Item     `json:"items" gorm:"foreignKey:AreaID"`
}

func (*Area) TableName() string {
	return "satoshigo_areas"
}

// Item is a collectible unit of value inside an area
type Item struct {
	ID          string         `json:"id" gorm:"primaryKey;size:36"`
	AreaID      string         `json:"area_id" gorm:"size:36;index:idx_item_area_id"`
	Type        string         `json:"item_type" gorm:"size:32;default:'simple'"`
	Value       int64          `json:"value"`
	Appearance  string         `json:"appearance" gorm:"size:32;default:'coin'"`
	Data        datatypes.JSON `json:"data"`
	Collected   bool           `json:"collected" gorm:"default:false"`
	CollectedBy string         `json:"collected_by" gorm:"size:36"`
	CollectedAt *time.Time     `json:"collected_at" gorm:"type:timestamptz"`
}

func (*Item) TableName() string {
	return "satoshigo_items"
}

// Player is a registered hunter
type Player struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	UserName  string    `json:"user_name" gorm:"size:127"`
	InKey     string    `json:"-" gorm:"size:64;uniqueIndex:idx_player_inkey"`
	GameID    string    `json:"game_id" gorm:"size:36;index:idx_player_game_id"`
	Balance   int64     `json:"balance" gorm:"default:0"`
	CreatedAt time.Time `json:"time" gorm:"type:timestamptz"`
}

func (*Player) TableName() string {
	return "satoshigo_players"
}
