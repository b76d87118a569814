package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pendingFunding struct {
	Hash     string
	Attempts int
}

func byHash(p pendingFunding) string { return p.Hash }

func TestAddDeduplicatesByKey(t *testing.T) {
	q := New(byHash)
	assert.Zero(t, q.Len())

	assert.True(t, q.Add(pendingFunding{Hash: "h1"}))
	assert.True(t, q.Add(pendingFunding{Hash: "h2"}))
	assert.False(t, q.Add(pendingFunding{Hash: "h1", Attempts: 3}))

	assert.Equal(t, 2, q.Len())
	assert.True(t, q.Has("h1"))
	assert.False(t, q.Has("h3"))

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, pendingFunding{Hash: "h1"}, first, "the original entry is kept")
}

func TestPopOrder(t *testing.T) {
	q := New(byHash)
	_, ok := q.Pop()
	assert.False(t, ok)

	for _, h := range []string{"a", "b", "c"} {
		q.Add(pendingFunding{Hash: h})
	}
	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got.Hash)
	}
	assert.Zero(t, q.Len())

	assert.True(t, q.Add(pendingFunding{Hash: "a"}), "popped keys can be queued again")
}

func TestDrain(t *testing.T) {
	q := New(byHash)
	assert.Empty(t, q.Drain())

	q.Add(pendingFunding{Hash: "h1", Attempts: 1})
	q.Add(pendingFunding{Hash: "h2", Attempts: 2})

	got := q.Drain()
	assert.Equal(t, []pendingFunding{{"h1", 1}, {"h2", 2}}, got)
	assert.Zero(t, q.Len())
	assert.False(t, q.Has("h1"))

	// requeue during a retry pass
	for _, p := range got {
		p.Attempts++
		q.Add(p)
	}
	assert.Equal(t, 2, q.Len())
}

func TestConcurrentAdd(t *testing.T) {
	q := New(byHash)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Add(pendingFunding{Hash: fmt.Sprintf("h%d", i%10)})
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, q.Len())
	assert.Len(t, q.Drain(), 10)
}
