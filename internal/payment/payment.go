// Package payment talks to the Lightning payment rail. Provider is the narrow
// seam the engine depends on; Client speaks the LNbits REST API and Ledger is
// an in-process stand-in for development and tests.
package payment

import (
	"context"
)

// Invoice is a freshly created payment request.
type Invoice struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
	Amount         int64  `json:"amount"`
}

// Status is the settlement state of an invoice.
type Status struct {
	Paid bool `json:"paid"`
}

// Provider creates and checks invoices on behalf of a wallet.
type Provider interface {
	CreateInvoice(ctx context.Context, walletKey string, amount int64, memo string) (Invoice, error)
	CheckInvoice(ctx context.Context, walletKey, paymentHash string) (Status, error)
}
