package pool

import (
	"errors"
	"sync"
)

// ErrExhausted reports a fixed-capacity pool with no free entries.
var ErrExhausted = errors.New("pool: exhausted")

// Linear is a preallocated, fixed-capacity pool whose entries are addressed
// by index. Indices are dense in [0, capacity) and are reused in LIFO order.
// The index doubles as a stable identity for the entry, which is what the
// group lattice relies on for leaf bit assignment.
type Linear[T any] struct {
	mu    sync.Mutex
	items []T
	free  []int32
	live  []bool
}

// NewLinear creates a linear pool with the given capacity.
func NewLinear[T any](capacity int) *Linear[T] {
	p := &Linear[T]{
		items: make([]T, capacity),
		free:  make([]int32, capacity),
		live:  make([]bool, capacity),
	}
	// LIFO stack of free indices, lowest on top.
	for i := range p.free {
		p.free[i] = int32(capacity - 1 - i)
	}
	return p
}

// Alloc claims an entry and returns its index and storage.
// Returns ErrExhausted when the pool is full.
func (p *Linear[T]) Alloc() (int, *T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return -1, nil, ErrExhausted
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	p.live[idx] = true
	return int(idx), &p.items[idx], nil
}

// Free returns an entry to the pool and zeroes its storage.
func (p *Linear[T]) Free(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.items) || !p.live[index] {
		panic("pool: linear free of invalid index")
	}
	var zero T
	p.items[index] = zero
	p.live[index] = false
	p.free = append(p.free, int32(index))
}

// At returns the storage of a live entry.
func (p *Linear[T]) At(index int) *T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.items) || !p.live[index] {
		return nil
	}
	return &p.items[index]
}

// Cap returns the fixed capacity.
func (p *Linear[T]) Cap() int {
	return len(p.items)
}

// InUse returns the number of claimed entries.
func (p *Linear[T]) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items) - len(p.free)
}
