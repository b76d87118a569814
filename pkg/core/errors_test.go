package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", fmt.Errorf("game abc: %w", ErrNotFound), KindNotFound},
		{"forbidden", ErrForbidden, KindForbidden},
		{"invalid amount", fmt.Errorf("partition: %w", ErrInvalidAmount), KindInvalidAmount},
		{"already collected", fmt.Errorf("item x: %w", ErrAlreadyCollected), KindAlreadyCollected},
		{"upstream", fmt.Errorf("check invoice: %w", ErrUpstreamUnavailable), KindUpstreamUnavailable},
		{"out of range", ErrOutOfRange, KindOutOfRange},
		{"plain error", errors.New("boom"), KindInternal},
		{"nil", nil, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrUpstreamUnavailable)))
	assert.False(t, IsRetryable(ErrNotFound))
}

func TestAreaWithItems_Value(t *testing.T) {
	a := AreaWithItems{Items: []Item{{Value: 3}, {Value: 3}, {Value: 4}}}
	assert.Equal(t, int64(10), a.Value())
	assert.Equal(t, int64(0), AreaWithItems{}.Value())
}
