package rhea

import "sync/atomic"

// refCount is the intrusive reference count embedded in every long-lived
// core object. The release policy is supplied by the embedding object as a
// destroy callback invoked exactly once, when the count reaches zero.
type refCount struct {
	refs atomic.Int32
}

// init sets the initial count. Not synchronized; callers invoke it before
// the object is shared.
func (rc *refCount) init(n int32) {
	rc.refs.Store(n)
}

// retain increments the count. The object must be live.
func (rc *refCount) retain() {
	if rc.refs.Add(1) <= 1 {
		panic("rhea: retain on a dead object")
	}
}

// release decrements the count and runs destroy when it reaches zero.
// The decrement publishes all prior writes to the destroying goroutine.
func (rc *refCount) release(destroy func()) {
	switch n := rc.refs.Add(-1); {
	case n == 0:
		destroy()
	case n < 0:
		panic("rhea: release underflow")
	}
}

// count reports the current count. For diagnostics and tests only.
func (rc *refCount) count() int32 {
	return rc.refs.Load()
}
