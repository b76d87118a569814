package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/satoshigo/hunt/pkg/core"
)

// GameInput is the operator-editable part of a game.
type GameInput struct {
	Title       string
	Description string
}

func (in GameInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("game title is required: %w", core.ErrInvalidInput)
	}
	return nil
}

// CreateGame stores a new game owned by wallet. walletKey is the invoice key
// fundings of this game are billed to.
func (m *Manager) CreateGame(ctx context.Context, wallet, walletKey string, in GameInput) (core.Game, error) {
	if wallet == "" || walletKey == "" {
		return core.Game{}, fmt.Errorf("wallet and wallet key are required: %w", core.ErrInvalidInput)
	}
	if err := in.validate(); err != nil {
		return core.Game{}, err
	}

	g := core.Game{
		ID:          m.deps.NewID(),
		Wallet:      wallet,
		WalletKey:   walletKey,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		CreatedAt:   m.deps.Now().UTC(),
	}
	if err := m.deps.Store.CreateGame(ctx, g); err != nil {
		return core.Game{}, fmt.Errorf("create game: %w", err)
	}
	m.deps.Logger.InfoContext(ctx, "Game created", "game_id", g.ID, "wallet", wallet)
	return g, nil
}

// GetGame returns a game by id.
func (m *Manager) GetGame(ctx context.Context, id string) (core.Game, error) {
	return m.loadGame(ctx, id)
}

// GetGameForWallet returns a game only if wallet owns it.
func (m *Manager) GetGameForWallet(ctx context.Context, wallet, id string) (core.Game, error) {
	g, err := m.deps.Store.GetGame(ctx, id)
	if err != nil {
		return core.Game{}, err
	}
	if g.Wallet != wallet {
		return core.Game{}, fmt.Errorf("game %s: %w", id, core.ErrForbidden)
	}
	return g, nil
}

// ListGames returns every game.
func (m *Manager) ListGames(ctx context.Context) ([]core.Game, error) {
	return m.deps.Store.ListGames(ctx)
}

// ListGamesForWallets returns the games owned by any of wallets.
func (m *Manager) ListGamesForWallets(ctx context.Context, wallets []string) ([]core.Game, error) {
	if len(wallets) == 0 {
		return []core.Game{}, nil
	}
	return m.deps.Store.ListGamesByWallets(ctx, wallets)
}

// UpdateGame changes the title and description of a game owned by wallet.
func (m *Manager) UpdateGame(ctx context.Context, wallet, id string, in GameInput) (core.Game, error) {
	if err := in.validate(); err != nil {
		return core.Game{}, err
	}
	g, err := m.GetGameForWallet(ctx, wallet, id)
	if err != nil {
		return core.Game{}, err
	}
	g.Title = strings.TrimSpace(in.Title)
	g.Description = in.Description
	if err := m.deps.Store.UpdateGame(ctx, g); err != nil {
		return core.Game{}, fmt.Errorf("update game %s: %w", id, err)
	}
	return g, nil
}

// DeleteGame removes a game owned by wallet together with everything in it.
func (m *Manager) DeleteGame(ctx context.Context, wallet, id string) error {
	if _, err := m.GetGameForWallet(ctx, wallet, id); err != nil {
		return err
	}
	if err := m.deps.Store.DeleteGame(ctx, id); err != nil {
		return fmt.Errorf("delete game %s: %w", id, err)
	}
	m.deps.Logger.InfoContext(ctx, "Game deleted", "game_id", id, "wallet", wallet)
	return nil
}
