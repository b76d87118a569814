package partition

import (
	"math/rand/v2"
	"testing"

	"github.com/satoshigo/hunt/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedInt int

func (f fixedInt) IntN(n int) int {
	if int(f) >= n {
		return n - 1
	}
	return int(f)
}

func TestPartition_FixedTiers(t *testing.T) {
	tests := []struct {
		amount int64
		want   Plan
	}{
		{10, Plan{AreaCount: 2, ItemsPerArea: 1, PerItemValue: 5, Remainder: 0}},
		{15, Plan{AreaCount: 2, ItemsPerArea: 1, PerItemValue: 7, Remainder: 1}},
		{20, Plan{AreaCount: 4, ItemsPerArea: 2, PerItemValue: 2, Remainder: 4}},
		{30, Plan{AreaCount: 4, ItemsPerArea: 2, PerItemValue: 3, Remainder: 6}},
		{49, Plan{AreaCount: 4, ItemsPerArea: 2, PerItemValue: 6, Remainder: 1}},
		{50, Plan{AreaCount: 5, ItemsPerArea: 2, PerItemValue: 5, Remainder: 0}},
		{100, Plan{AreaCount: 10, ItemsPerArea: 2, PerItemValue: 5, Remainder: 0}},
		{999, Plan{AreaCount: 20, ItemsPerArea: 2, PerItemValue: 24, Remainder: 39}},
		{1000, Plan{AreaCount: 30, ItemsPerArea: 3, PerItemValue: 11, Remainder: 10}},
		{5000, Plan{AreaCount: 40, ItemsPerArea: 3, PerItemValue: 41, Remainder: 80}},
	}

	for _, tt := range tests {
		got, err := Partition(tt.amount, fixedInt(0))
		require.NoError(t, err, "amount %d", tt.amount)
		assert.Equal(t, tt.want, got, "amount %d", tt.amount)
	}
}

func TestPartition_RandomTiers(t *testing.T) {
	got, err := Partition(10000, fixedInt(0))
	require.NoError(t, err)
	assert.Equal(t, 50, got.AreaCount)
	assert.Equal(t, 2, got.ItemsPerArea)
	assert.Equal(t, int64(100), got.PerItemValue)

	got, err = Partition(10000, fixedInt(2))
	require.NoError(t, err)
	assert.Equal(t, 4, got.ItemsPerArea)
	assert.Equal(t, int64(50), got.PerItemValue)

	got, err = Partition(1_000_000, fixedInt(4))
	require.NoError(t, err)
	assert.Equal(t, 100, got.AreaCount)
	assert.Equal(t, 6, got.ItemsPerArea)
	assert.Equal(t, int64(1666), got.PerItemValue)
	assert.Equal(t, int64(400), got.Remainder)
}

func TestPartition_ItemsStayInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 9))
	for i := 0; i < 500; i++ {
		p, err := Partition(250_000, rng)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.ItemsPerArea, 2)
		assert.LessOrEqual(t, p.ItemsPerArea, 6)
	}
}

func TestPartition_Conservation(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for _, amount := range []int64{10, 11, 19, 37, 64, 250, 777, 4321, 9999, 12345, 99999, 100000, 3_141_592} {
		p, err := Partition(amount, rng)
		require.NoError(t, err)
		assert.Equal(t, amount, p.Allocated()+p.Remainder, "amount %d", amount)
		assert.GreaterOrEqual(t, p.Remainder, int64(0))
		assert.Less(t, p.Remainder, int64(p.Items()))
		assert.GreaterOrEqual(t, p.PerItemValue, int64(1))
	}
}

func TestPartition_BelowMinimum(t *testing.T) {
	for _, amount := range []int64{-5, 0, 1, 9} {
		_, err := Partition(amount, fixedInt(0))
		assert.ErrorIs(t, err, core.ErrInvalidAmount, "amount %d", amount)
	}
}

func TestTierFor_BoundaryTakesLaterTier(t *testing.T) {
	tier, err := TierFor(100)
	require.NoError(t, err)
	assert.Equal(t, 10, tier.Areas)

	tier, err = TierFor(100000)
	require.NoError(t, err)
	assert.Equal(t, 100, tier.Areas)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(10))
	assert.ErrorIs(t, Validate(9), core.ErrInvalidAmount)
}
