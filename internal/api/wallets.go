package api

import (
	"fmt"

	"github.com/satoshigo/hunt/internal/config"
)

// Wallet is the caller resolved from an api key.
type Wallet struct {
	ID   string
	User string
	// Admin is true when the caller used the admin key.
	Admin bool
	// InvoiceKey bills fundings of games this wallet creates.
	InvoiceKey string
}

// Wallets resolves api keys to wallets using the static table from
// configuration.
type Wallets struct {
	byKey  map[string]Wallet
	byUser map[string][]string
}

// NewWallets indexes the configured wallets. Keys must be unique.
func NewWallets(wallets []config.Wallet) (*Wallets, error) {
	ws := &Wallets{
		byKey:  make(map[string]Wallet),
		byUser: make(map[string][]string),
	}
	add := func(key string, w Wallet) error {
		if key == "" {
			return nil
		}
		if _, dup := ws.byKey[key]; dup {
			return fmt.Errorf("api key of wallet %s is used twice", w.ID)
		}
		ws.byKey[key] = w
		return nil
	}

	for _, c := range wallets {
		invoiceKey := c.InvoiceKey
		if invoiceKey == "" {
			invoiceKey = c.AdminKey
		}
		base := Wallet{ID: c.ID, User: c.User, InvoiceKey: invoiceKey}
		if err := add(c.InvoiceKey, base); err != nil {
			return nil, err
		}
		admin := base
		admin.Admin = true
		if err := add(c.AdminKey, admin); err != nil {
			return nil, err
		}
		user := c.User
		if user == "" {
			user = c.ID
		}
		ws.byUser[user] = append(ws.byUser[user], c.ID)
	}
	return ws, nil
}

// Lookup returns the wallet owning key.
func (ws *Wallets) Lookup(key string) (Wallet, bool) {
	w, ok := ws.byKey[key]
	return w, ok
}

// Siblings returns the ids of every wallet belonging to the same user as w,
// w included.
func (ws *Wallets) Siblings(w Wallet) []string {
	user := w.User
	if user == "" {
		user = w.ID
	}
	ids := ws.byUser[user]
	if len(ids) == 0 {
		return []string{w.ID}
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
