package rhea

import (
	"sync"
	"sync/atomic"
	"time"
)

// Group is a named, reference-counted set of tasks with cancel and wait-for
// semantics. Groups compose by intersection through the lattice; see
// lattice.go for canonicalization.
type Group struct {
	refCount
	id   uint32
	name string
	leaf bool
	// leafBit is the lattice bit for leaf groups, -1 for meets.
	leafBit int
	sig     signature

	// seesDescendantTasks controls whether tasks joined to an inferior
	// group are also counted here.
	seesDescendantTasks bool

	parents  []*Group
	children []*Group

	canceledFlag atomic.Bool
	repTask      atomic.Pointer[Task]

	mu          sync.Mutex
	outstanding int
	idle        chan struct{}
	firstErr    error
	errCounts   map[ErrorKind]int

	rt *runtimeState
}

// CreateGroup creates a leaf group. The name is optional and used only for
// diagnostics. The handle carries one user reference.
func CreateGroup(name string) (*Group, error) {
	rt := currentRuntime()
	if rt == nil {
		return nil, ErrNotRunning
	}
	return rt.lattice.newLeaf(rt, name)
}

// Intersect returns the canonical group containing exactly the tasks joined
// to both a and b. Repeated calls return the same handle; Intersect(a, b)
// and Intersect(b, a) are the same group.
func Intersect(a, b *Group) (*Group, error) {
	rt := currentRuntime()
	if rt == nil {
		return nil, ErrNotRunning
	}
	return rt.lattice.meet(rt, a, b)
}

// ID returns the group id.
func (g *Group) ID() uint32 { return g.id }

// Name returns the diagnostic name.
func (g *Group) Name() string { return g.name }

// Retain adds a user reference.
func (g *Group) Retain() { g.retainRef() }

// ReleaseRef drops a user reference. The group is destroyed once no handles
// remain and no tasks are outstanding; outstanding tasks hold an internal
// reference.
func (g *Group) ReleaseRef() { g.releaseRef() }

func (g *Group) retainRef()  { g.refCount.retain() }
func (g *Group) releaseRef() { g.refCount.release(g.destroy) }

func (g *Group) destroy() {
	if g.rt != nil {
		g.rt.lattice.remove(g)
	}
}

// Canceled reports whether this group or any of its superiors is canceled.
func (g *Group) Canceled() bool {
	if g.canceledFlag.Load() {
		return true
	}
	if g.rt == nil {
		return false
	}
	return g.rt.lattice.canceledAbove(g)
}

// Cancel marks the group canceled. Joined tasks that are not yet Running
// terminate as Canceled without executing user code; running tasks observe
// the cancellation at their next check point. Cancel is idempotent.
func (g *Group) Cancel() {
	g.canceledFlag.Store(true)
}

// WaitFor blocks until every task counted in the group has reached a
// terminal state, then reports the group outcome: nil when all tasks
// completed, ErrGroupCanceled when the group was canceled, and an
// AggregateError describing the collected failures otherwise.
func (g *Group) WaitFor() error {
	g.mu.Lock()
	ch := g.idle
	busy := g.outstanding > 0
	g.mu.Unlock()
	if busy {
		<-ch
	}
	return g.outcome()
}

// WaitForTimeout is WaitFor with a relative deadline.
func (g *Group) WaitForTimeout(d time.Duration) error {
	g.mu.Lock()
	ch := g.idle
	busy := g.outstanding > 0
	g.mu.Unlock()
	if busy {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ch:
		case <-timer.C:
			return ErrTimeout
		}
	}
	return g.outcome()
}

func (g *Group) outcome() error {
	if g.Canceled() {
		return ErrGroupCanceled
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.firstErr == nil {
		return nil
	}
	return &AggregateError{Op: "WaitFor", First: g.firstErr, Counts: g.errCounts}
}

// Outstanding reports the number of counted, unfinished tasks.
func (g *Group) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outstanding
}

// SetRepresentative records the task that stands for the group in pattern
// front-ends.
func (g *Group) SetRepresentative(t *Task) {
	g.repTask.Store(t)
}

// Representative returns the pattern representative task, if any.
func (g *Group) Representative() *Task {
	return g.repTask.Load()
}

// countedIn snapshots the set of groups a joining task is counted in: the
// group itself plus every superior whose seesDescendantTasks flag is set.
// A meet created later may splice itself in above g, so the set is only a
// snapshot; callers that pair increments with decrements must retire the
// same snapshot they counted into.
func (g *Group) countedIn() []*Group {
	if g.rt == nil {
		return []*Group{g}
	}
	return g.rt.lattice.observersOf(g)
}

// taskJoined counts one task into the group and its observing superiors and
// returns the exact set counted, for the matching retirement at the task's
// terminal transition.
func (g *Group) taskJoined() []*Group {
	counted := g.countedIn()
	for _, n := range counted {
		n.incrOutstanding()
	}
	return counted
}

func (g *Group) incrOutstanding() {
	g.mu.Lock()
	wasIdle := g.outstanding == 0
	if wasIdle {
		g.idle = make(chan struct{})
	}
	g.outstanding++
	g.mu.Unlock()
	if wasIdle {
		// Outstanding work keeps the group alive independent of handles.
		g.retainRef()
	}
}

func (g *Group) decrOutstanding(err error) {
	g.mu.Lock()
	if err != nil {
		if g.firstErr == nil {
			g.firstErr = err
			g.errCounts = make(map[ErrorKind]int)
		}
		g.errCounts[errKindOf(err)]++
	}
	g.outstanding--
	release := false
	if g.outstanding == 0 {
		close(g.idle)
		release = true
	}
	g.mu.Unlock()
	if release {
		g.releaseRef()
	}
}
