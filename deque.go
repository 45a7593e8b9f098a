package rhea

import (
	"sync/atomic"
)

// cacheLinePad separates hot atomics so the owner's bottom index and the
// thieves' top index never share a cache line.
type cacheLinePad struct {
	_ [64]byte
}

// taskRing is the circular array backing a deque. Capacity is a power of
// two; a ring is immutable once published and replaced wholesale on growth.
type taskRing struct {
	mask int64
	buf  []atomic.Pointer[Task]
}

func newTaskRing(capacity int64) *taskRing {
	return &taskRing{
		mask: capacity - 1,
		buf:  make([]atomic.Pointer[Task], capacity),
	}
}

func (r *taskRing) get(i int64) *Task {
	return r.buf[i&r.mask].Load()
}

func (r *taskRing) put(i int64, t *Task) {
	r.buf[i&r.mask].Store(t)
}

func (r *taskRing) cap() int64 {
	return r.mask + 1
}

// deque is the per-worker work-stealing queue. The owner pushes and takes at
// the bottom; thieves take at the top. Ordering follows Chase-Lev, with the
// Le-Pop correction on the owner's last-element self-take: the take races a
// thief on a CAS of top, and the loser restores bottom to top+1.
//
// Grown-out rings are chained on retired and released when the deque is
// destroyed, never during operation, so a thief holding a stale ring pointer
// always reads live memory.
type deque struct {
	_      cacheLinePad
	top    atomic.Int64
	_      cacheLinePad
	bottom atomic.Int64
	_      cacheLinePad
	array  atomic.Pointer[taskRing]

	retired []*taskRing // owner-only
}

func newDeque(capacity int64) *deque {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		capacity = DefaultDequeCapacity
	}
	d := &deque{}
	d.array.Store(newTaskRing(capacity))
	return d
}

// pushBottom appends a task at the owner end. Owner-only.
func (d *deque) pushBottom(t *Task) {
	b := d.bottom.Load()
	tp := d.top.Load()
	a := d.array.Load()

	if b-tp >= a.cap()-1 {
		a = d.grow(a, b, tp)
	}
	a.put(b, t)
	d.bottom.Store(b + 1)
}

// popBottom removes the most recently pushed task. Owner-only.
// Returns nil when the deque is empty or the last element was stolen.
func (d *deque) popBottom() *Task {
	b := d.bottom.Load() - 1
	d.bottom.Store(b)
	tp := d.top.Load()

	if tp > b {
		// Already empty; undo the reservation.
		d.bottom.Store(tp)
		return nil
	}
	a := d.array.Load()
	t := a.get(b)
	if tp == b {
		// Last element: race thieves on top. On loss the thief owns the
		// element and bottom is restored to top+1.
		if !d.top.CompareAndSwap(tp, tp+1) {
			t = nil
		}
		d.bottom.Store(tp + 1)
	}
	return t
}

// steal removes the oldest task on behalf of a thief. Safe for concurrent
// callers; returns nil when empty or when the CAS on top is lost.
func (d *deque) steal() *Task {
	tp := d.top.Load()
	b := d.bottom.Load()
	if tp >= b {
		return nil
	}
	a := d.array.Load()
	t := a.get(tp)
	if !d.top.CompareAndSwap(tp, tp+1) {
		return nil
	}
	return t
}

// grow publishes a ring of twice the capacity. Owner-only. The old ring is
// chained for reclamation at destruction.
func (d *deque) grow(old *taskRing, b, tp int64) *taskRing {
	next := newTaskRing(old.cap() * 2)
	for i := tp; i < b; i++ {
		next.put(i, old.get(i))
	}
	d.retired = append(d.retired, old)
	d.array.Store(next)
	return next
}

// size is a racy estimate of queued tasks.
func (d *deque) size() int64 {
	n := d.bottom.Load() - d.top.Load()
	if n < 0 {
		return 0
	}
	return n
}

// destroy drops the ring chain. Owner-only, after workers quiesce.
func (d *deque) destroy() {
	d.retired = nil
	d.array.Store(nil)
}
