package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/satoshigo/hunt/pkg/core"
)

type ledgerEntry struct {
	walletKey string
	amount    int64
	memo      string
	created   time.Time
	paid      bool
}

// Ledger is an in-memory Provider. Invoices are paid by calling Settle, or
// automatically once AutoSettle has elapsed since creation when it is set.
type Ledger struct {
	AutoSettle time.Duration

	mu       sync.Mutex
	invoices map[string]*ledgerEntry
	now      func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger(autoSettle time.Duration) *Ledger {
	return &Ledger{
		AutoSettle: autoSettle,
		invoices:   make(map[string]*ledgerEntry),
		now:        time.Now,
	}
}

// CreateInvoice implements Provider.
func (l *Ledger) CreateInvoice(_ context.Context, walletKey string, amount int64, memo string) (Invoice, error) {
	if amount <= 0 {
		return Invoice{}, fmt.Errorf("invoice amount %d: %w", amount, core.ErrInvalidAmount)
	}
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return Invoice{}, fmt.Errorf("generate payment hash: %w", err)
	}
	hash := hex.EncodeToString(raw[:])

	l.mu.Lock()
	l.invoices[hash] = &ledgerEntry{walletKey: walletKey, amount: amount, memo: memo, created: l.now()}
	l.mu.Unlock()

	return Invoice{
		PaymentHash:    hash,
		PaymentRequest: fmt.Sprintf("lnbcrt%dn1%s", amount, hash[:20]),
		Amount:         amount,
	}, nil
}

// CheckInvoice implements Provider. Invoices are only visible to the wallet
// key that created them.
func (l *Ledger) CheckInvoice(_ context.Context, walletKey, paymentHash string) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.invoices[paymentHash]
	if !ok || e.walletKey != walletKey {
		return Status{}, fmt.Errorf("invoice %s: %w", paymentHash, core.ErrNotFound)
	}
	if !e.paid && l.AutoSettle > 0 && l.now().Sub(e.created) >= l.AutoSettle {
		e.paid = true
	}
	return Status{Paid: e.paid}, nil
}

// Settle marks an invoice as paid.
func (l *Ledger) Settle(paymentHash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.invoices[paymentHash]
	if !ok {
		return fmt.Errorf("invoice %s: %w", paymentHash, core.ErrNotFound)
	}
	e.paid = true
	return nil
}

// Memo returns the memo an invoice was created with.
func (l *Ledger) Memo(paymentHash string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.invoices[paymentHash]
	if !ok {
		return "", false
	}
	return e.memo, true
}
