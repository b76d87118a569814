package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/satoshigo/hunt/pkg/core"
)

// RegisterPlayer creates a player with a fresh secret key.
func (m *Manager) RegisterPlayer(ctx context.Context, userName string) (core.Player, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return core.Player{}, fmt.Errorf("user name is required: %w", core.ErrInvalidInput)
	}
	key, err := m.deps.NewKey()
	if err != nil {
		return core.Player{}, err
	}

	p := core.Player{
		ID:        m.deps.NewID(),
		UserName:  userName,
		InKey:     key,
		CreatedAt: m.deps.Now().UTC(),
	}
	if err := m.deps.Store.CreatePlayer(ctx, p); err != nil {
		return core.Player{}, fmt.Errorf("create player: %w", err)
	}
	m.deps.Logger.InfoContext(ctx, "Player registered", "player_id", p.ID)
	return p, nil
}

// UpdatePlayer renames a player.
func (m *Manager) UpdatePlayer(ctx context.Context, id, userName string) (core.Player, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return core.Player{}, fmt.Errorf("user name is required: %w", core.ErrInvalidInput)
	}
	p, err := m.deps.Store.GetPlayer(ctx, id)
	if err != nil {
		return core.Player{}, err
	}
	p.UserName = userName
	if err := m.deps.Store.UpdatePlayer(ctx, p); err != nil {
		return core.Player{}, fmt.Errorf("update player %s: %w", id, err)
	}
	return p, nil
}

// GetPlayer returns a player by id.
func (m *Manager) GetPlayer(ctx context.Context, id string) (core.Player, error) {
	return m.deps.Store.GetPlayer(ctx, id)
}

// GetPlayerByKey returns the player holding a secret key.
func (m *Manager) GetPlayerByKey(ctx context.Context, inKey string) (core.Player, error) {
	if inKey == "" {
		return core.Player{}, fmt.Errorf("player key is required: %w", core.ErrInvalidInput)
	}
	return m.deps.Store.GetPlayerByKey(ctx, inKey)
}

// ListPlayersForWallets returns the players currently in games owned by any
// of wallets.
func (m *Manager) ListPlayersForWallets(ctx context.Context, wallets []string) ([]core.Player, error) {
	games, err := m.ListGamesForWallets(ctx, wallets)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return []core.Player{}, nil
	}
	ids := make([]string, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.ID)
	}
	return m.deps.Store.ListPlayersByGames(ctx, ids)
}
