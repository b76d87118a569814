// pkg/core/events.go
package core

// Dispatcher commands emitted by the engine.
const (
	CmdAreaCreated      = ":AREA:CREATED:"
	CmdFundingConfirmed = ":FUNDING:CONFIRMED:"
	CmdItemCollected    = ":ITEM:COLLECTED:"
)

// AreaCreated is emitted once per area after a materialization commits.
type AreaCreated struct {
	GameID string
	Area   AreaWithItems
}

// FundingConfirmed is emitted once per confirmed funding.
type FundingConfirmed struct {
	Funding      Funding
	AreaCount    int
	ItemsPerArea int
	PerItemValue int64
	Unallocated  int64
}

// ItemCollected is emitted after a successful claim.
type ItemCollected struct {
	GameID   string
	Item     Item
	PlayerID string
}
