package metrictree

import (
	"context"
	"fmt"
	"sync"
)

// NodeStore persists node records. The builder hands every finished node to
// Put, children before parents; the query engine calls Get to dereference
// child handles. Implementations must be safe for concurrent use.
type NodeStore[T any] interface {
	Put(ctx context.Context, rec *NodeRecord[T]) (Handle, error)
	Get(ctx context.Context, h Handle) (*NodeRecord[T], error)
}

// MemoryStore is a NodeStore kept in process memory. Handles are 1-based
// positions in insertion order.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	records []*NodeRecord[T]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{}
}

func (s *MemoryStore[T]) Put(_ context.Context, rec *NodeRecord[T]) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return Handle(len(s.records)), nil
}

func (s *MemoryStore[T]) Get(_ context.Context, h Handle) (*NodeRecord[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h == 0 || int(h) > len(s.records) {
		return nil, fmt.Errorf("%w: handle %d", ErrNodeNotFound, h)
	}
	return s.records[h-1], nil
}

// Len returns the number of stored records.
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
