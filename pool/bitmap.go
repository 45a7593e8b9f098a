package pool

import (
	"math/bits"
	"sync/atomic"
)

// Bitmap32 hands out up to 32 slot ids through lock-free claim/release.
// Claim probes the lowest zero bit (find-first-set on the complement) and
// publishes it with a compare-and-swap.
type Bitmap32 struct {
	mask atomic.Uint32
}

// Claim returns a free slot id, or ok=false when all 32 slots are taken.
func (b *Bitmap32) Claim() (id int, ok bool) {
	for {
		v := b.mask.Load()
		free := ^v
		if free == 0 {
			return -1, false
		}
		id = bits.TrailingZeros32(free)
		if b.mask.CompareAndSwap(v, v|1<<uint(id)) {
			return id, true
		}
	}
}

// Release returns a slot id to the bitmap. Releasing an unclaimed id is a
// programming error and panics.
func (b *Bitmap32) Release(id int) {
	bit := uint32(1) << uint(id)
	for {
		v := b.mask.Load()
		if v&bit == 0 {
			panic("pool: release of unclaimed slot")
		}
		if b.mask.CompareAndSwap(v, v&^bit) {
			return
		}
	}
}

// Count reports the number of claimed slots.
func (b *Bitmap32) Count() int {
	return bits.OnesCount32(b.mask.Load())
}

// Reset clears every slot.
func (b *Bitmap32) Reset() {
	b.mask.Store(0)
}
