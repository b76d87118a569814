// Package partition splits a funding amount into areas and equally valued items.
package partition

import (
	"fmt"
	"math"

	"github.com/satoshigo/hunt/pkg/core"
)

// MinAmount is the smallest funding, in sats, that maps to a tier.
const MinAmount int64 = 10

// Source yields uniform ints in [0,n). *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

// Tier maps an inclusive amount range to an area count and an items-per-area
// range. MinItems == MaxItems means a fixed count.
type Tier struct {
	Min      int64
	Max      int64
	Areas    int
	MinItems int
	MaxItems int
}

// Tiers is the funding table. Ranges share their boundaries and the last
// matching tier wins, so a boundary amount takes the larger tier.
var Tiers = []Tier{
	{Min: 10, Max: 20, Areas: 2, MinItems: 1, MaxItems: 1},
	{Min: 20, Max: 50, Areas: 4, MinItems: 2, MaxItems: 2},
	{Min: 50, Max: 100, Areas: 5, MinItems: 2, MaxItems: 2},
	{Min: 100, Max: 500, Areas: 10, MinItems: 2, MaxItems: 2},
	{Min: 500, Max: 1000, Areas: 20, MinItems: 2, MaxItems: 2},
	{Min: 1000, Max: 5000, Areas: 30, MinItems: 3, MaxItems: 3},
	{Min: 5000, Max: 10000, Areas: 40, MinItems: 3, MaxItems: 3},
	{Min: 10000, Max: 100000, Areas: 50, MinItems: 2, MaxItems: 4},
	{Min: 100000, Max: math.MaxInt64, Areas: 100, MinItems: 2, MaxItems: 6},
}

// Plan is the outcome of partitioning one funding.
type Plan struct {
	AreaCount    int
	ItemsPerArea int
	PerItemValue int64
	// Remainder is the part of the amount not placed into any item.
	Remainder int64
}

// Items returns the total number of items in the plan.
func (p Plan) Items() int {
	return p.AreaCount * p.ItemsPerArea
}

// Allocated returns the sats placed into items.
func (p Plan) Allocated() int64 {
	return int64(p.Items()) * p.PerItemValue
}

// TierFor returns the tier an amount falls into.
func TierFor(amount int64) (Tier, error) {
	var (
		found Tier
		ok    bool
	)
	for _, t := range Tiers {
		if amount >= t.Min && amount <= t.Max {
			found, ok = t, true
		}
	}
	if !ok {
		return Tier{}, fmt.Errorf("amount %d below minimum %d: %w", amount, MinAmount, core.ErrInvalidAmount)
	}
	return found, nil
}

// Validate reports whether amount can be partitioned.
func Validate(amount int64) error {
	_, err := TierFor(amount)
	return err
}

// Partition computes the plan for amount. rng is only consulted for tiers
// with a random items-per-area range.
func Partition(amount int64, rng Source) (Plan, error) {
	tier, err := TierFor(amount)
	if err != nil {
		return Plan{}, err
	}

	items := tier.MinItems
	if tier.MaxItems > tier.MinItems {
		items += rng.IntN(tier.MaxItems - tier.MinItems + 1)
	}

	total := int64(tier.Areas * items)
	per := amount / total
	return Plan{
		AreaCount:    tier.Areas,
		ItemsPerArea: items,
		PerItemValue: per,
		Remainder:    amount - per*total,
	}, nil
}
