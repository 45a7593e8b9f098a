package rhea

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Drive the tree directly with raw goroutines: every index in the range is
// visited exactly once no matter how the range splits.
func TestTreeVisitsEachIndexOnce(t *testing.T) {
	const n = 100000
	visits := make([]atomic.Int32, n)
	tr := newWSTree(n, 64, func(first, last int64, acc any) any {
		for i := first; i <= last; i++ {
			visits[i].Add(1)
		}
		return nil
	})
	tr.preSplit(4)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !tr.finished() {
				if n := tr.findWork(); n != nil {
					tr.runOwned(n)
				}
			}
		}()
	}
	wg.Wait()
	require.True(t, tr.finished())
	for i := range visits {
		require.Equal(t, int32(1), visits[i].Load(), "index %d", i)
	}
}

func TestTreeSingleOwnerNoSplit(t *testing.T) {
	const n = 500
	var visited int64
	tr := newWSTree(n, 64, func(first, last int64, acc any) any {
		visited += last - first + 1
		return nil
	})
	for !tr.finished() {
		node := tr.findWork()
		require.NotNil(t, node)
		tr.runOwned(node)
	}
	assert.Equal(t, int64(n), visited)
	assert.Nil(t, tr.findWork())
}

// fold visits node accumulators in sequential iteration order, so a
// non-commutative (but associative) combiner still gets the sequential
// result.
func TestTreeFoldPreservesOrder(t *testing.T) {
	const n = 2000
	tr := newWSTree(n, 16, func(first, last int64, acc any) any {
		s, _ := acc.(string)
		for i := first; i <= last; i++ {
			s += string(rune('a' + i%26))
		}
		return s
	})
	tr.preSplit(8)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !tr.finished() {
				if n := tr.findWork(); n != nil {
					tr.runOwned(n)
				}
			}
		}()
	}
	wg.Wait()

	got := tr.fold("", func(a, b any) any { return a.(string) + b.(string) }).(string)
	want := ""
	for i := int64(0); i < n; i++ {
		want += string(rune('a' + i%26))
	}
	assert.Equal(t, want, got)
}

func TestTreeEmptyRange(t *testing.T) {
	tr := newWSTree(0, 16, func(first, last int64, acc any) any { return nil })
	assert.True(t, tr.finished())
}

func TestTreeStealSplitsRemainder(t *testing.T) {
	const n = 1000
	tr := newWSTree(n, 10, func(first, last int64, acc any) any { return nil })

	owner := tr.findWork()
	require.NotNil(t, owner)
	require.Same(t, tr.root, owner)

	// A thief arriving while the owner sits on its first block takes half of
	// the untouched remainder.
	stolen := tr.trySteal(tr.root)
	require.NotNil(t, stolen)
	assert.EqualValues(t, rangeStolen, tr.root.progress.Load())
	assert.EqualValues(t, 10, stolen.first, "children start past the owner's current block")

	l, r := tr.root.left.Load(), tr.root.right.Load()
	require.NotNil(t, l)
	require.NotNil(t, r)
	assert.EqualValues(t, r.last, n-1)
	assert.Equal(t, l.last+1, r.first)
}
