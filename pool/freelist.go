package pool

import (
	"sync/atomic"
	"unsafe"
)

// entry is the allocation unit of a FreeList. The header fields in front of
// the value are what let Put and OwnerOf recover the owning pool from a bare
// value pointer, without a side table.
type entry[T any] struct {
	next  atomic.Pointer[entry[T]]
	owner *FreeList[T]
	heap  bool // true for fallback allocations outside any slab
	val   T
}

// entryOf recovers the enclosing entry from a value pointer handed out by Get.
func entryOf[T any](v *T) *entry[T] {
	var probe entry[T]
	off := unsafe.Offsetof(probe.val)
	return (*entry[T])(unsafe.Add(unsafe.Pointer(v), -off))
}

// slab is a block of entries bump-allocated from front to back.
type slab[T any] struct {
	entries []entry[T]
	cursor  atomic.Int32
}

// FreeList is a size-class object pool. Storage comes from slabs of
// slabSize entries; slab slots are claimed from a 32-bit bitmap, bounding
// pooled capacity at 32*slabSize objects. Freed objects go on a LIFO
// free stack, which keeps recently used memory hot. When the bitmap is
// exhausted, Get falls back to plain heap allocation; such objects bypass
// the free stack on Put and are reclaimed by the garbage collector.
type FreeList[T any] struct {
	head     atomic.Pointer[entry[T]]
	cur      atomic.Pointer[slab[T]]
	bits     Bitmap32
	slabSize int

	freeLen    atomic.Int64
	allocs     atomic.Uint64
	recycles   atomic.Uint64
	heapAllocs atomic.Uint64
}

// NewFreeList creates a pool with the given entries-per-slab count.
func NewFreeList[T any](slabSize int) *FreeList[T] {
	if slabSize <= 0 {
		slabSize = 64
	}
	return &FreeList[T]{slabSize: slabSize}
}

// Get returns a zeroed value from the pool, growing it by one slab when the
// free stack and the current slab are both empty.
func (p *FreeList[T]) Get() *T {
	if e := p.pop(); e != nil {
		p.recycles.Add(1)
		var zero T
		e.val = zero
		return &e.val
	}
	for {
		s := p.cur.Load()
		if s != nil {
			i := s.cursor.Add(1) - 1
			if int(i) < len(s.entries) {
				e := &s.entries[i]
				e.owner = p
				p.allocs.Add(1)
				return &e.val
			}
		}
		id, ok := p.bits.Claim()
		if !ok {
			// Pooled capacity exhausted; fall back to the default heap.
			p.heapAllocs.Add(1)
			e := &entry[T]{owner: p, heap: true}
			return &e.val
		}
		ns := &slab[T]{entries: make([]entry[T], p.slabSize)}
		if !p.cur.CompareAndSwap(s, ns) {
			// Lost the race; the winner's slab serves everyone.
			p.bits.Release(id)
		}
	}
}

// Put returns a value to its owning pool. The owner is recovered from the
// embedded header, so values from different pools of the same class may be
// freed through any pool handle.
func (p *FreeList[T]) Put(v *T) {
	e := entryOf(v)
	owner := e.owner
	if owner == nil {
		panic("pool: put of foreign object")
	}
	if e.heap {
		return // heap fallback, garbage collected
	}
	owner.push(e)
}

// OwnerOf reports the pool a pooled value was drawn from.
func OwnerOf[T any](v *T) *FreeList[T] {
	return entryOf(v).owner
}

// FreeCount reports the length of the free stack.
func (p *FreeList[T]) FreeCount() int {
	return int(p.freeLen.Load())
}

// Stats reports allocation counters: slab allocations, recycled gets and
// heap fallbacks.
func (p *FreeList[T]) Stats() (allocs, recycles, heapAllocs uint64) {
	return p.allocs.Load(), p.recycles.Load(), p.heapAllocs.Load()
}

// push and pop implement the Treiber free stack. The garbage collector makes
// the classic ABA hazard a non-issue: a popped entry cannot be reused while
// another goroutine still holds its pointer.
func (p *FreeList[T]) push(e *entry[T]) {
	for {
		old := p.head.Load()
		e.next.Store(old)
		if p.head.CompareAndSwap(old, e) {
			p.freeLen.Add(1)
			return
		}
	}
}

func (p *FreeList[T]) pop() *entry[T] {
	for {
		top := p.head.Load()
		if top == nil {
			return nil
		}
		next := top.next.Load()
		if p.head.CompareAndSwap(top, next) {
			top.next.Store(nil)
			p.freeLen.Add(-1)
			return top
		}
	}
}
