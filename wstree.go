package rhea

import (
	"math"
	"runtime"
	"sync/atomic"

	"github.com/rheolabs/rhea/pool"
)

// Progress sentinels. A node's progress counter is UNCLAIMED before any
// worker owns it, STOLEN once a thief split its remaining range into
// children, and otherwise the start index of the block its owner is
// currently executing.
const (
	rangeUnclaimed = int64(math.MinInt64)
	rangeStolen    = int64(math.MinInt64) + 1
)

// rangeNode is one subrange of the iteration space. The owner executes a
// contiguous prefix block by block; if the node is stolen, the children
// cover the untouched remainder, so an in-order walk over (prefix, left
// subtree, right subtree) reproduces sequential iteration order.
type rangeNode struct {
	first, last int64 // inclusive logical indices
	progress    atomic.Int64
	left, right atomic.Pointer[rangeNode]
	traversals  atomic.Int64
	completed   atomic.Bool

	// acc is the fold over the owner's prefix; written only by the owner,
	// read after the tree quiesces. Nil when the pattern keeps no state or
	// the owner executed nothing.
	acc any
}

func (n *rangeNode) size() int64 { return n.last - n.first + 1 }

// done reports whether every index under n has been executed, memoizing the
// answer so repeated descents short-circuit.
func (n *rangeNode) done() bool {
	if n.completed.Load() {
		return true
	}
	if n.progress.Load() != rangeStolen {
		return false
	}
	l, r := n.left.Load(), n.right.Load()
	if l != nil && r != nil && l.done() && r.done() {
		n.completed.Store(true)
		return true
	}
	return false
}

// leafBody executes the logical indices [first, last] of one claimed block,
// folding into and returning the node accumulator. Map-style patterns return
// nil.
type leafBody func(first, last int64, acc any) any

// wsTree is the adaptive work-stealing tree shared by the data-parallel
// patterns. The tree is policy-agnostic: the pattern front-ends differ only
// in the leaf body and in how node accumulators are combined afterwards.
type wsTree struct {
	root      *rangeNode
	blk       int64
	body      leafBody
	nodes     *pool.Bump[rangeNode]
	remaining atomic.Int64
}

// newWSTree builds a tree over the logical range [0, count).
func newWSTree(count, blk int64, body leafBody) *wsTree {
	if blk < 1 {
		blk = DefaultBlockSize
	}
	tr := &wsTree{
		blk:   blk,
		body:  body,
		nodes: pool.NewBump[rangeNode](PoolSlabSize),
	}
	tr.root = tr.alloc(0, count-1)
	tr.remaining.Store(count)
	return tr
}

func (tr *wsTree) alloc(first, last int64) *rangeNode {
	n := tr.nodes.Alloc()
	n.first, n.last = first, last
	n.progress.Store(rangeUnclaimed)
	return n
}

// finished reports whether every index has been executed.
func (tr *wsTree) finished() bool { return tr.remaining.Load() <= 0 }

// preSplit splits the root into roughly `parts` leaves before the first
// claim, so concurrent workers start on disjoint ranges instead of racing to
// split a hot root.
func (tr *wsTree) preSplit(parts int) {
	var split func(n *rangeNode, parts int)
	split = func(n *rangeNode, parts int) {
		if parts < 2 || n.size() < 2*tr.blk || n.size() < 2*MinSplitRange {
			return
		}
		mid := n.first + (n.last-n.first)/2
		l := tr.alloc(n.first, mid)
		r := tr.alloc(mid+1, n.last)
		n.left.Store(l)
		n.right.Store(r)
		n.progress.Store(rangeStolen)
		split(l, parts/2)
		split(r, parts-parts/2)
	}
	split(tr.root, parts)
}

// runOwned executes the node's blocks until the range is exhausted or a
// thief takes the remainder.
func (tr *wsTree) runOwned(n *rangeNode) {
	p := n.progress.Load()
	for {
		end := p + tr.blk - 1
		if end > n.last {
			end = n.last
		}
		n.acc = tr.body(p, end, n.acc)
		tr.remaining.Add(-(end - p + 1))
		next := end + 1
		if next > n.last {
			// No thief can split a node whose owner is on its final block,
			// so a plain store cannot clobber STOLEN.
			n.progress.Store(next)
			n.completed.Store(true)
			return
		}
		if !n.progress.CompareAndSwap(p, next) {
			// Stolen: the children own [next, last].
			return
		}
		p = next
	}
}

// trySteal splits an owned node, publishing two children over the range the
// owner has not reached, and claims one of them for the thief. The owner
// keeps the block it is executing.
func (tr *wsTree) trySteal(n *rangeNode) *rangeNode {
	p := n.progress.Load()
	if p == rangeUnclaimed || p == rangeStolen {
		return nil
	}
	restFirst := p + tr.blk
	if n.last-restFirst+1 < MinSplitRange {
		return nil
	}
	if !n.progress.CompareAndSwap(p, rangeStolen) {
		return nil
	}
	mid := restFirst + (n.last-restFirst)/2
	l := tr.alloc(restFirst, mid)
	r := tr.alloc(mid+1, n.last)
	n.left.Store(l)
	n.right.Store(r)
	if l.progress.CompareAndSwap(rangeUnclaimed, l.first) {
		return l
	}
	return nil
}

// findWork descends from the root looking for a node to own, preferring the
// child with the smaller traversal counter. Returns the claimed node with
// its progress already set, or nil when no work is reachable right now.
func (tr *wsTree) findWork() *rangeNode {
	n := tr.root
	for n != nil && !n.done() {
		p := n.progress.Load()
		if p == rangeUnclaimed {
			if n.progress.CompareAndSwap(rangeUnclaimed, n.first) {
				return n
			}
			continue
		}
		if p != rangeStolen {
			if c := tr.trySteal(n); c != nil {
				return c
			}
			if n.progress.Load() == rangeStolen {
				continue
			}
			return nil
		}
		l, r := n.left.Load(), n.right.Load()
		if l == nil || r == nil {
			// Split in flight; children not yet published.
			return nil
		}
		a, b := l, r
		if b.traversals.Load() < a.traversals.Load() {
			a, b = b, a
		}
		if !a.done() {
			a.traversals.Add(1)
			n = a
		} else {
			b.traversals.Add(1)
			n = b
		}
	}
	return nil
}

// fold combines every node accumulator with the user combiner in sequential
// iteration order: a node's owner prefix precedes its children's ranges.
// Must only run after the tree quiesced.
func (tr *wsTree) fold(acc any, combine func(a, b any) any) any {
	var walk func(n *rangeNode)
	walk = func(n *rangeNode) {
		if n == nil {
			return
		}
		if n.acc != nil {
			acc = combine(acc, n.acc)
		}
		walk(n.left.Load())
		walk(n.right.Load())
	}
	walk(tr.root)
	return acc
}

// participate claims and runs nodes until the tree is finished or the task
// is canceled. Both the master and the helper tasks run this loop; the
// master additionally spins out the last stragglers so fold never observes a
// node mid-execution.
func (tr *wsTree) participate(tc *TaskContext) error {
	for !tr.finished() {
		if tc != nil {
			if err := tc.AbortOnCancel(); err != nil {
				return err
			}
		}
		if n := tr.findWork(); n != nil {
			tr.runOwned(n)
			continue
		}
		if tc != nil {
			tc.Yield()
		} else {
			runtime.Gosched()
		}
	}
	return nil
}

// runParallel drives the tree with helper tasks: the caller becomes the
// master, degree-1 helpers are launched into an internal group, and the call
// returns once every index executed and all helpers retired.
func (tr *wsTree) runParallel(tc *TaskContext, name string) error {
	rt := currentRuntime()
	if rt == nil {
		return ErrNotRunning
	}
	degree := degreeOfConcurrency()
	tr.preSplit(degree)

	g, err := CreateGroup(name)
	if err != nil {
		return err
	}
	defer g.ReleaseRef()

	helper := func(htc *TaskContext) error {
		return tr.participate(htc)
	}
	for i := 1; i < degree; i++ {
		t, err := TryCreateTask(helper, WithAttrs(AttrPFor))
		if err != nil {
			break
		}
		if g.Representative() == nil {
			g.SetRepresentative(t)
		}
		var lerr error
		if tc != nil {
			lerr = tc.LaunchInto(t, g)
		} else {
			lerr = t.LaunchInto(g)
		}
		t.ReleaseRef()
		if lerr != nil {
			break
		}
	}

	if err := tr.participate(tc); err != nil {
		g.Cancel()
	}
	var werr error
	if tc != nil {
		werr = tc.WaitForGroup(g)
	} else {
		werr = g.WaitFor()
	}
	if tc != nil {
		if err := tc.AbortOnCancel(); err != nil {
			return err
		}
	}
	return werr
}
