package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/satoshigo/hunt/internal/geo"
	"github.com/satoshigo/hunt/pkg/core"
)

// ItemInput describes an operator-authored item. Data is free-form JSON.
type ItemInput struct {
	AreaID     string
	Type       string
	Value      int64
	Appearance string
	Data       string
}

func (in ItemInput) validate() error {
	if in.Value <= 0 {
		return fmt.Errorf("item value %d: %w", in.Value, core.ErrInvalidAmount)
	}
	if in.Data != "" && !json.Valid([]byte(in.Data)) {
		return fmt.Errorf("item data is not valid JSON: %w", core.ErrInvalidInput)
	}
	return nil
}

// ownedArea loads an area and checks that wallet owns its game.
func (m *Manager) ownedArea(ctx context.Context, wallet, areaID string) (core.AreaWithItems, error) {
	area, err := m.deps.Store.GetArea(ctx, areaID)
	if err != nil {
		return core.AreaWithItems{}, err
	}
	if _, err := m.GetGameForWallet(ctx, wallet, area.Area.GameID); err != nil {
		return core.AreaWithItems{}, err
	}
	return area, nil
}

// CreateItem adds an item to an area of a game owned by wallet.
func (m *Manager) CreateItem(ctx context.Context, wallet string, in ItemInput) (core.Item, error) {
	if err := in.validate(); err != nil {
		return core.Item{}, err
	}
	if _, err := m.ownedArea(ctx, wallet, in.AreaID); err != nil {
		return core.Item{}, err
	}

	it := core.Item{
		ID:         m.deps.NewID(),
		AreaID:     in.AreaID,
		Type:       in.Type,
		Value:      in.Value,
		Appearance: in.Appearance,
		Data:       in.Data,
	}
	if it.Type == "" {
		it.Type = core.ItemTypeSimple
	}
	if it.Appearance == "" {
		it.Appearance = core.AppearanceCoin
	}
	if err := m.deps.Store.CreateItem(ctx, it); err != nil {
		return core.Item{}, fmt.Errorf("create item: %w", err)
	}
	return it, nil
}

// UpdateItem edits an item of a game owned by wallet. The area cannot change
// and collected items are frozen.
func (m *Manager) UpdateItem(ctx context.Context, wallet, id string, in ItemInput) (core.Item, error) {
	if err := in.validate(); err != nil {
		return core.Item{}, err
	}
	it, err := m.deps.Store.GetItem(ctx, id)
	if err != nil {
		return core.Item{}, err
	}
	if _, err := m.ownedArea(ctx, wallet, it.AreaID); err != nil {
		return core.Item{}, err
	}
	if it.Collected {
		return core.Item{}, fmt.Errorf("item %s: %w", id, core.ErrAlreadyCollected)
	}

	if in.Type != "" {
		it.Type = in.Type
	}
	if in.Appearance != "" {
		it.Appearance = in.Appearance
	}
	it.Value = in.Value
	it.Data = in.Data
	if err := m.deps.Store.UpdateItem(ctx, it); err != nil {
		return core.Item{}, fmt.Errorf("update item %s: %w", id, err)
	}
	return it, nil
}

// GetArea returns an area with its items.
func (m *Manager) GetArea(ctx context.Context, id string) (core.AreaWithItems, error) {
	return m.deps.Store.GetArea(ctx, id)
}

// FindAreas returns the areas centred within radius meters of (lon, lat).
func (m *Manager) FindAreas(ctx context.Context, lon, lat, radius float64) ([]core.AreaWithItems, error) {
	center := core.Coordinate{Lon: lon, Lat: lat}
	if err := geo.Validate(center); err != nil {
		return nil, err
	}
	if radius <= 0 {
		return nil, fmt.Errorf("radius %.1f must be positive: %w", radius, core.ErrInvalidInput)
	}
	return m.deps.Store.FindAreas(ctx, center, radius)
}
