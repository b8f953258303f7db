// Package dedup provides the bounded recency set used to drop feed entries
// that were already handled in this or a recent poll cycle. It is a fast
// path only; durable uniqueness lives in the transactions table.
package dedup

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RecencySet records recently seen transaction hashes.
type RecencySet interface {
	// Mark records hash and reports whether it was absent before the call.
	Mark(ctx context.Context, hash string) (bool, error)
	// Unmark forgets hash so a later cycle may process it again.
	Unmark(ctx context.Context, hash string) error
}

// MemorySet is a size-bounded, least-recently-used RecencySet.
type MemorySet struct {
	cache *lru.Cache[string, struct{}]
}

var _ RecencySet = (*MemorySet)(nil)

// NewMemorySet returns a set that holds up to size hashes.
func NewMemorySet(size int) (*MemorySet, error) {
	c, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("recency set: %w", err)
	}
	return &MemorySet{cache: c}, nil
}

func (s *MemorySet) Mark(_ context.Context, hash string) (bool, error) {
	found, _ := s.cache.ContainsOrAdd(hash, struct{}{})
	return !found, nil
}

func (s *MemorySet) Unmark(_ context.Context, hash string) error {
	s.cache.Remove(hash)
	return nil
}
