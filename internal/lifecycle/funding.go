package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/satoshigo/hunt/internal/geo"
	"github.com/satoshigo/hunt/internal/partition"
	"github.com/satoshigo/hunt/internal/payment"
	"github.com/satoshigo/hunt/pkg/core"
)

// FundingRequest asks for an invoice that, once paid, seeds Amount sats into
// the rectangle spanned by the two corners.
type FundingRequest struct {
	GameID      string
	TopLeft     core.Coordinate
	BottomRight core.Coordinate
	Amount      int64
}

// RequestFunding validates the request, bills it to the game's wallet and
// stores the funding unconfirmed. It returns the funding and the payment
// request to show the payer.
func (m *Manager) RequestFunding(ctx context.Context, req FundingRequest) (core.Funding, string, error) {
	if err := partition.Validate(req.Amount); err != nil {
		return core.Funding{}, "", err
	}
	if err := geo.Validate(req.TopLeft); err != nil {
		return core.Funding{}, "", err
	}
	if err := geo.Validate(req.BottomRight); err != nil {
		return core.Funding{}, "", err
	}
	game, err := m.loadGame(ctx, req.GameID)
	if err != nil {
		return core.Funding{}, "", err
	}

	var inv payment.Invoice
	err = m.callPayment(ctx, func(ctx context.Context) error {
		var err error
		inv, err = m.deps.Payments.CreateInvoice(ctx, game.WalletKey, req.Amount, game.ID)
		return err
	})
	if err != nil {
		return core.Funding{}, "", fmt.Errorf("create invoice for game %s: %w", game.ID, err)
	}

	f := core.Funding{
		ID:             inv.PaymentHash,
		GameID:         game.ID,
		Wallet:         game.Wallet,
		Amount:         req.Amount,
		TopLeft:        req.TopLeft,
		BottomRight:    req.BottomRight,
		PaymentRequest: inv.PaymentRequest,
		CreatedAt:      m.deps.Now().UTC(),
	}
	if err := m.deps.Store.CreateFunding(ctx, f); err != nil {
		return core.Funding{}, "", fmt.Errorf("store funding: %w", err)
	}
	m.requested.Add(ctx, 1)
	m.deps.Logger.InfoContext(ctx, "Funding requested",
		"game_id", game.ID, "payment_hash", f.ID, "amount", f.Amount)
	return f, inv.PaymentRequest, nil
}

// GetFunding returns a funding by payment hash.
func (m *Manager) GetFunding(ctx context.Context, paymentHash string) (core.Funding, error) {
	return m.loadFunding(ctx, paymentHash)
}

// PollAndConfirm checks the invoice of a funding and materializes it once it
// is paid. Polling an already confirmed funding reports it as paid and
// changes nothing. Concurrent polls for the same game and hash share one check.
func (m *Manager) PollAndConfirm(ctx context.Context, gameID, paymentHash string) (core.FundingStatus, error) {
	v, err, _ := m.polls.Do(gameID+"/"+paymentHash, func() (any, error) {
		// the shared call must not die with whichever caller started it
		return m.pollAndConfirm(context.WithoutCancel(ctx), gameID, paymentHash)
	})
	if err != nil {
		return core.FundingStatus{PaymentHash: paymentHash}, err
	}
	return v.(core.FundingStatus), nil
}

func (m *Manager) pollAndConfirm(ctx context.Context, gameID, paymentHash string) (core.FundingStatus, error) {
	status := core.FundingStatus{PaymentHash: paymentHash}

	f, err := m.loadFunding(ctx, paymentHash)
	if err != nil {
		return status, err
	}
	if f.GameID != gameID {
		return status, fmt.Errorf("funding %s in game %s: %w", paymentHash, gameID, core.ErrNotFound)
	}
	if f.Confirmed {
		status.Paid, status.Confirmed = true, true
		return status, nil
	}
	game, err := m.loadGame(ctx, f.GameID)
	if err != nil {
		return status, err
	}

	var paid payment.Status
	err = m.callPayment(ctx, func(ctx context.Context) error {
		var err error
		paid, err = m.deps.Payments.CheckInvoice(ctx, game.WalletKey, paymentHash)
		return err
	})
	if err != nil {
		return status, fmt.Errorf("check invoice %s: %w", paymentHash, err)
	}
	if !paid.Paid {
		return status, nil
	}
	status.Paid = true

	res, err := m.deps.Materializer.Materialize(ctx, f, game)
	if err != nil {
		m.failures.Add(ctx, 1)
		if retryable(err) {
			m.enqueue(ctx, Pending{PaymentHash: paymentHash, LastError: err.Error()})
		}
		return status, fmt.Errorf("materialize funding %s: %w", paymentHash, err)
	}
	status.Confirmed = true
	status.AreasCreated = len(res.Areas)
	return status, nil
}

func (m *Manager) enqueue(ctx context.Context, p Pending) {
	if m.pending.Add(p) {
		m.deps.Logger.WarnContext(ctx, "Funding queued for retry",
			"payment_hash", p.PaymentHash, "attempts", p.Attempts, "error", p.LastError)
	}
}

// RetryPending re-runs materialization for paid fundings whose first attempt
// failed. It returns how many were confirmed. Fundings that keep failing are
// requeued until they reach MaxAttempts.
func (m *Manager) RetryPending(ctx context.Context) (int, error) {
	var (
		confirmed int
		errs      []error
	)
	for _, p := range m.pending.Drain() {
		if err := ctx.Err(); err != nil {
			m.pending.Add(p)
			continue
		}

		err := m.retryOne(ctx, p.PaymentHash)
		if err == nil {
			confirmed++
			continue
		}
		errs = append(errs, err)

		p.Attempts++
		p.LastError = err.Error()
		if p.Attempts >= m.deps.MaxAttempts || !retryable(err) {
			m.deps.Logger.ErrorContext(ctx, "Giving up on funding",
				"payment_hash", p.PaymentHash, "attempts", p.Attempts, "error", err)
			continue
		}
		m.enqueue(ctx, p)
	}
	if confirmed > 0 {
		m.deps.Logger.InfoContext(ctx, "Pending fundings confirmed", "count", confirmed)
	}
	return confirmed, errors.Join(errs...)
}

func (m *Manager) retryOne(ctx context.Context, paymentHash string) error {
	f, err := m.loadFunding(ctx, paymentHash)
	if err != nil {
		return err
	}
	if f.Confirmed {
		return nil
	}
	game, err := m.loadGame(ctx, f.GameID)
	if err != nil {
		return err
	}
	if _, err := m.deps.Materializer.Materialize(ctx, f, game); err != nil {
		return fmt.Errorf("materialize funding %s: %w", paymentHash, err)
	}
	return nil
}

// retryable reports whether a failed materialization may succeed later.
// Missing records and bad input will not fix themselves.
func retryable(err error) bool {
	switch core.KindOf(err) {
	case core.KindNotFound, core.KindInvalidInput, core.KindInvalidAmount:
		return false
	}
	return true
}
