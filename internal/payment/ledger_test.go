package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satoshigo/hunt/pkg/core"
)

func TestLedger_CreateAndSettle(t *testing.T) {
	l := NewLedger(0)
	ctx := context.Background()

	inv, err := l.CreateInvoice(ctx, "inkey", 30, "game-1")
	require.NoError(t, err)
	assert.Len(t, inv.PaymentHash, 64)
	assert.Contains(t, inv.PaymentRequest, "lnbcrt30n1")
	assert.Equal(t, int64(30), inv.Amount)

	memo, ok := l.Memo(inv.PaymentHash)
	require.True(t, ok)
	assert.Equal(t, "game-1", memo)

	st, err := l.CheckInvoice(ctx, "inkey", inv.PaymentHash)
	require.NoError(t, err)
	assert.False(t, st.Paid)

	require.NoError(t, l.Settle(inv.PaymentHash))
	st, err = l.CheckInvoice(ctx, "inkey", inv.PaymentHash)
	require.NoError(t, err)
	assert.True(t, st.Paid)
}

func TestLedger_UniqueHashes(t *testing.T) {
	l := NewLedger(0)
	a, err := l.CreateInvoice(context.Background(), "k", 10, "")
	require.NoError(t, err)
	b, err := l.CreateInvoice(context.Background(), "k", 10, "")
	require.NoError(t, err)
	assert.NotEqual(t, a.PaymentHash, b.PaymentHash)
}

func TestLedger_WrongWalletKey(t *testing.T) {
	l := NewLedger(0)
	inv, err := l.CreateInvoice(context.Background(), "mine", 10, "")
	require.NoError(t, err)

	_, err = l.CheckInvoice(context.Background(), "theirs", inv.PaymentHash)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLedger_Unknown(t *testing.T) {
	l := NewLedger(0)
	_, err := l.CheckInvoice(context.Background(), "k", "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, l.Settle("nope"), core.ErrNotFound)
}

func TestLedger_RejectsNonPositiveAmount(t *testing.T) {
	l := NewLedger(0)
	_, err := l.CreateInvoice(context.Background(), "k", 0, "")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestLedger_AutoSettle(t *testing.T) {
	l := NewLedger(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	inv, err := l.CreateInvoice(context.Background(), "k", 10, "")
	require.NoError(t, err)

	st, err := l.CheckInvoice(context.Background(), "k", inv.PaymentHash)
	require.NoError(t, err)
	assert.False(t, st.Paid)

	now = now.Add(time.Minute)
	st, err = l.CheckInvoice(context.Background(), "k", inv.PaymentHash)
	require.NoError(t, err)
	assert.True(t, st.Paid)
}
