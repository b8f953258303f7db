package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySet_MarkUnmark(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemorySet(4)
	require.NoError(t, err)

	fresh, err := s.Mark(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, fresh, "first mark should be fresh")

	fresh, _ = s.Mark(ctx, "h1")
	assert.False(t, fresh, "second mark should report seen")

	require.NoError(t, s.Unmark(ctx, "h1"))
	fresh, _ = s.Mark(ctx, "h1")
	assert.True(t, fresh, "mark after unmark should be fresh again")
}

func TestMemorySet_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemorySet(3)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _ = s.Mark(ctx, fmt.Sprintf("h%d", i))
	}
	assert.Equal(t, 3, s.cache.Len())
	assert.False(t, s.cache.Contains("h0"))
	assert.False(t, s.cache.Contains("h1"))
	for _, h := range []string{"h2", "h3", "h4"} {
		assert.True(t, s.cache.Contains(h), h)
	}
}

func TestMemorySet_ConcurrentMarkHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemorySet(16)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := s.Mark(ctx, "same")
			if ok {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fresh)
}

func TestNewMemorySet_RejectsZeroSize(t *testing.T) {
	_, err := NewMemorySet(0)
	assert.Error(t, err)
}
