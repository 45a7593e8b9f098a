package pool

import (
	"sync"
	"sync/atomic"
)

// Bump is a concurrent bump arena of fixed-size slabs. Allocation claims the
// next offset in the current slab with a single fetch-add; a fresh slab is
// chained when the current one fills. Reset drops every slab at once, which
// is how pattern executions discard their work-stealing tree in O(1).
//
// Reset requires quiescence: no Alloc may be in flight and no pointer handed
// out earlier may be used afterwards.
type Bump[T any] struct {
	cur  atomic.Pointer[slab[T]]
	bits Bitmap32

	mu       sync.Mutex
	retained []*slab[T]
	slabSize int
}

// NewBump creates a bump arena with the given entries-per-slab count.
func NewBump[T any](slabSize int) *Bump[T] {
	if slabSize <= 0 {
		slabSize = 64
	}
	return &Bump[T]{slabSize: slabSize}
}

// Alloc returns a zeroed entry. Falls back to the heap when all 32 slab
// slots are claimed; fallback entries are simply garbage collected.
func (b *Bump[T]) Alloc() *T {
	for {
		s := b.cur.Load()
		if s != nil {
			i := s.cursor.Add(1) - 1
			if int(i) < len(s.entries) {
				return &s.entries[i].val
			}
		}
		id, ok := b.bits.Claim()
		if !ok {
			return new(T)
		}
		ns := &slab[T]{entries: make([]entry[T], b.slabSize)}
		if b.cur.CompareAndSwap(s, ns) {
			b.mu.Lock()
			b.retained = append(b.retained, ns)
			b.mu.Unlock()
		} else {
			b.bits.Release(id)
		}
	}
}

// Reset discards all slabs. See the quiescence requirement above.
func (b *Bump[T]) Reset() {
	b.mu.Lock()
	b.retained = nil
	b.mu.Unlock()
	b.cur.Store(nil)
	b.bits.Reset()
}

// Slabs reports the number of live slabs.
func (b *Bump[T]) Slabs() int {
	return b.bits.Count()
}
