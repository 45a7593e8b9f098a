package rhea

import (
	"sort"
	"unsafe"
)

// AcquireTarget is anything the acquire protocol can pin: every Buffer[T]
// satisfies it regardless of element type, which lets tasks declare
// mixed-type buffer sets.
type AcquireTarget interface {
	bufID() uint64
	state() *bufferState
}

// Buffer is a typed view over n elements whose contents migrate between
// device-visible arenas on demand.
//
// A buffer starts with no pinned storage (or with the supplied memory
// region) and materializes an arena per device class on first acquire.
// Exactly one arena owns the contents at any instant; ReadWrite and
// WriteOnly acquires transfer ownership to the target device.
type Buffer[T any] struct {
	st    *bufferState
	elems int
}

// NewBuffer creates a buffer of n elements with lazily allocated storage.
func NewBuffer[T any](n int) *Buffer[T] {
	b, err := NewBufferRegion[T](n, nil)
	if err != nil {
		panic(err)
	}
	return b
}

// NewBufferRegion creates a buffer of n elements backed by the given memory
// region. The region must hold at least n elements; a nil region defers
// allocation to the first acquire.
func NewBufferRegion[T any](n int, r *MemRegion) (*Buffer[T], error) {
	if n <= 0 {
		return nil, NewInvalidArgError("NewBuffer", "element count must be positive")
	}
	size := n * int(unsafe.Sizeof(*new(T)))
	if r != nil && r.Size() < size {
		return nil, NewInvalidArgError("NewBuffer", "region smaller than requested element count")
	}
	return &Buffer[T]{st: newBufferState(size, r), elems: n}, nil
}

// Len returns the element count.
func (b *Buffer[T]) Len() int { return b.elems }

func (b *Buffer[T]) bufID() uint64       { return b.st.id }
func (b *Buffer[T]) state() *bufferState { return b.st }

// Acquire pins the buffer to a device class for the given access mode,
// blocking while an incompatible acquire is in flight. Concurrent ReadOnly
// acquires on the same device share the pin.
func (b *Buffer[T]) Acquire(device DeviceClass, mode AccessMode) error {
	return b.st.acquire(device, mode)
}

// Release drops one sharer; idempotent without a matching successful
// Acquire. When the sharer count reaches zero the buffer is re-targetable.
func (b *Buffer[T]) Release() {
	b.st.release()
}

// HostData returns the host element slice when the main arena is resident
// and owning, nil otherwise.
func (b *Buffer[T]) HostData() []T {
	raw := b.st.hostBytes()
	if raw == nil {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), b.elems)
}

// Slice returns the host element view. Valid only between a CPU acquire and
// the matching release; the caller must not retain it past the release.
func (b *Buffer[T]) Slice() []T {
	b.st.mu.Lock()
	a := b.st.arenas[CPU]
	b.st.mu.Unlock()
	if a == nil || a.region == nil {
		return nil
	}
	raw := a.region.Bytes()
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), b.elems)
}

// Destroy frees internally allocated arenas. The buffer must not be acquired.
func (b *Buffer[T]) Destroy() error {
	return b.st.destroy()
}

// AcquireSlice acquires the buffer on a CPU class and returns the host
// element view plus the release closure:
//
//	s, release, err := rhea.AcquireSlice(buf, rhea.CPU, rhea.ReadWrite)
//	if err != nil {
//		return err
//	}
//	defer release()
func AcquireSlice[T any](b *Buffer[T], device DeviceClass, mode AccessMode) ([]T, func(), error) {
	if !device.IsCPU() {
		return nil, nil, NewInvalidArgError("AcquireSlice", "host slices require a CPU device class")
	}
	if err := b.Acquire(device, mode); err != nil {
		return nil, nil, err
	}
	return b.Slice(), b.Release, nil
}

// AcquireScope holds a set of successful acquires and releases them together
// on all exit paths.
type AcquireScope struct {
	held     []AcquireTarget
	released bool
}

// Release releases every held buffer in reverse acquire order. Idempotent.
func (sc *AcquireScope) Release() {
	if sc == nil || sc.released {
		return
	}
	sc.released = true
	for i := len(sc.held) - 1; i >= 0; i-- {
		sc.held[i].state().release()
	}
}

// AcquireSet acquires a batch of buffers on one device in canonical order
// (ascending buffer identity) so concurrent batches over overlapping sets
// cannot deadlock. On failure every buffer acquired so far is released.
func AcquireSet(device DeviceClass, mode AccessMode, targets ...AcquireTarget) (*AcquireScope, error) {
	holds := make([]bufferHold, len(targets))
	for i, tg := range targets {
		holds[i] = bufferHold{target: tg, device: device, mode: mode}
	}
	return acquireOrdered(holds)
}

func acquireOrdered(holds []bufferHold) (*AcquireScope, error) {
	sorted := make([]bufferHold, len(holds))
	copy(sorted, holds)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].target.bufID() < sorted[j].target.bufID()
	})
	sc := &AcquireScope{held: make([]AcquireTarget, 0, len(sorted))}
	for _, h := range sorted {
		if err := h.target.state().acquire(h.device, h.mode); err != nil {
			sc.Release()
			return nil, err
		}
		sc.held = append(sc.held, h.target)
	}
	return sc, nil
}

// acquireHolds pins the buffer arguments declared with WithBuffer before the
// task body runs. The scope is released on the terminal transition.
func (t *Task) acquireHolds() error {
	if len(t.holds) == 0 {
		return nil
	}
	sc, err := acquireOrdered(t.holds)
	if err != nil {
		return err
	}
	t.acquired = sc
	return nil
}
