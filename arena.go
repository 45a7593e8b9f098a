package rhea

import (
	"sync"
	"sync/atomic"
)

// AccessMode is the intent declared when acquiring a buffer.
type AccessMode int

const (
	// ReadOnly acquires migrate data to the target device without taking
	// ownership; the previous owner's arena stays valid.
	ReadOnly AccessMode = iota
	// WriteOnly acquires skip the migration copy and invalidate every other
	// arena of the buffer.
	WriteOnly
	// ReadWrite acquires migrate data to the target device and transfer
	// ownership, invalidating every other arena.
	ReadWrite
)

// String returns the access mode as a string.
func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "ro"
	case WriteOnly:
		return "wo"
	case ReadWrite:
		return "rw"
	default:
		return "invalid"
	}
}

// arena is device-visible storage for one device class of a buffer. Host
// (CPU) arenas hold a MemRegion; device arenas hold an executor handle. A
// bound arena aliases the host region, so migration to or from it needs no
// copy.
type arena struct {
	device DeviceClass
	region *MemRegion
	handle ArenaHandle
	ex     Executor
	valid  bool
	bound  bool
}

// bufferState is the untyped core of a buffer: the arena set, the sharer
// count and the acquire protocol. Metadata transitions hold mu; data
// movement runs with moving set so compatible joiners wait it out.
type bufferState struct {
	mu     sync.Mutex
	cond   *sync.Cond
	id     uint64
	size   int
	region *MemRegion // construction-time backing, nil for lazily allocated buffers

	sharers int
	mode    AccessMode
	pinned  DeviceClass
	moving  bool

	owner  DeviceClass // 0 while no arena owns the contents
	arenas map[DeviceClass]*arena

	copies atomic.Uint64
}

var bufferIDs atomic.Uint64

func newBufferState(size int, region *MemRegion) *bufferState {
	s := &bufferState{
		id:     bufferIDs.Add(1),
		size:   size,
		region: region,
		arenas: make(map[DeviceClass]*arena),
	}
	s.cond = sync.NewCond(&s.mu)
	if region != nil && region.Bytes() != nil {
		a := &arena{device: CPU, region: region, valid: true, bound: region.Kind() == RegionION}
		s.arenas[CPU] = a
		s.owner = CPU
	}
	return s
}

// arenaKey folds the requested device class onto the arena map key: both CPU
// clusters share the host arena.
func arenaKey(device DeviceClass) (DeviceClass, error) {
	if device == 0 {
		return 0, NewInvalidArgError("Acquire", "device class must be non-empty")
	}
	if device&CPU != 0 {
		if device&^CPU != 0 {
			return 0, NewInvalidArgError("Acquire", "device class mixes CPU and device bits")
		}
		return CPU, nil
	}
	if !device.single() {
		return 0, NewInvalidArgError("Acquire", "device class must select one device")
	}
	return device, nil
}

// acquire pins the buffer to the requested device class, materializing and
// migrating the target arena as needed. Concurrent acquires with
// incompatible modes block until the sharer count drops to zero; ro acquires
// on the already-pinned device join without migration.
func (s *bufferState) acquire(device DeviceClass, mode AccessMode) error {
	key, err := arenaKey(device)
	if err != nil {
		return err
	}
	if mode < ReadOnly || mode > ReadWrite {
		return ErrInvalidMode
	}
	rt := currentRuntime()
	if rt == nil {
		return ErrNotRunning
	}
	var ex Executor
	if key != CPU {
		var ok bool
		ex, ok = rt.execs.lookup(key)
		if !ok {
			return &Error{Kind: KindDeviceNotAvailable, Op: "Acquire",
				Message: "no executor registered for " + key.String(), Err: ErrDeviceNotAvailable}
		}
	}

	s.mu.Lock()
	for s.moving || (s.sharers > 0 && !(mode == ReadOnly && s.mode == ReadOnly && s.pinned == key)) {
		s.cond.Wait()
	}
	if s.sharers > 0 {
		// Compatible ro join: arena is resident and valid.
		s.sharers++
		s.mu.Unlock()
		return nil
	}
	s.sharers = 1
	s.mode = mode
	prevPinned := s.pinned
	s.pinned = key
	s.moving = true
	s.mu.Unlock()

	err = s.migrate(key, ex, mode)

	s.mu.Lock()
	s.moving = false
	if err != nil {
		s.sharers = 0
		s.pinned = prevPinned
	}
	s.cond.Broadcast()
	s.mu.Unlock()
	return err
}

// release drops one sharer. Idempotent when the caller holds no successful
// acquire.
func (s *bufferState) release() {
	s.mu.Lock()
	if s.sharers > 0 {
		s.sharers--
		if s.sharers == 0 {
			s.cond.Broadcast()
		}
	}
	s.mu.Unlock()
}

// ensureArena materializes storage for the key. The caller holds mu.
func (s *bufferState) ensureArena(key DeviceClass, ex Executor) (*arena, error) {
	if a := s.arenas[key]; a != nil {
		return a, nil
	}
	a := &arena{device: key, ex: ex}
	if key == CPU {
		r, err := NewMainRegion(s.size, HostArenaAlignment)
		if err != nil {
			return nil, err
		}
		a.region = r
	} else {
		if s.region != nil && s.region.Kind() == RegionION && s.region.Bytes() != nil {
			// ION storage is visible to devices as-is.
			a.region = s.region
			a.bound = true
		} else {
			h, err := ex.AllocArena(s.size)
			if err != nil {
				return nil, NewAllocationError("Acquire", "device arena allocation failed", err)
			}
			a.handle = h
		}
	}
	return a, nil
}

// migrate brings the target arena up to date for the requested mode and
// updates ownership. The moving flag excludes concurrent migrations; the
// arena map and validity flags are still mutated only under mu, so readers
// like hostBytes stay consistent. Only the data copies run unlocked.
func (s *bufferState) migrate(key DeviceClass, ex Executor, mode AccessMode) error {
	s.mu.Lock()
	dst, err := s.ensureArena(key, ex)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.arenas[key] = dst
	var src *arena
	if mode != WriteOnly && !dst.valid && s.owner != 0 && s.owner != key {
		src = s.arenas[s.owner]
	}
	s.mu.Unlock()

	if src != nil {
		if err := s.copyBetween(src, dst); err != nil {
			return err
		}
	}

	s.mu.Lock()
	dst.valid = true
	if mode != ReadOnly {
		for k, a := range s.arenas {
			if k != key && !a.bound {
				a.valid = false
			}
		}
		s.owner = key
	} else if s.owner == 0 {
		s.owner = key
	}
	s.mu.Unlock()
	return nil
}

// copyBetween moves the buffer contents from src to dst using the smallest
// available transfer: nothing for bound pairs, one executor transfer when
// either side is the host, a host round-trip between two devices.
func (s *bufferState) copyBetween(src, dst *arena) error {
	if src.bound && dst.bound {
		return nil
	}
	switch {
	case src.region != nil && dst.region != nil:
		if &src.region.Bytes()[0] != &dst.region.Bytes()[0] {
			copy(dst.region.Bytes(), src.region.Bytes())
			s.copies.Add(1)
		}
	case src.region != nil:
		if err := dst.ex.CopyIn(dst.handle, src.region.Bytes()); err != nil {
			return err
		}
		s.copies.Add(1)
	case dst.region != nil:
		if err := src.ex.CopyOut(dst.region.Bytes(), src.handle); err != nil {
			return err
		}
		s.copies.Add(1)
	default:
		s.mu.Lock()
		host, err := s.ensureArena(CPU, nil)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.arenas[CPU] = host
		s.mu.Unlock()
		if err := src.ex.CopyOut(host.region.Bytes(), src.handle); err != nil {
			return err
		}
		if err := dst.ex.CopyIn(dst.handle, host.region.Bytes()); err != nil {
			return err
		}
		s.mu.Lock()
		host.valid = true
		s.mu.Unlock()
		s.copies.Add(2)
	}
	return nil
}

// hostBytes returns the host storage when the main arena is resident and
// owning, nil otherwise.
func (s *bufferState) hostBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.arenas[CPU]
	if a == nil || !a.valid || s.owner != CPU || a.region == nil {
		return nil
	}
	return a.region.Bytes()
}

// destroy frees internally allocated arenas. The buffer must have no sharers.
func (s *bufferState) destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for k, a := range s.arenas {
		if a.handle != nil && a.ex != nil {
			if err := a.ex.FreeArena(a.handle); err != nil && first == nil {
				first = err
			}
		}
		if a.region != nil && a.region != s.region {
			if err := a.region.Close(); err != nil && first == nil {
				first = err
			}
		}
		delete(s.arenas, k)
	}
	s.owner = 0
	return first
}
