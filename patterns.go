package rhea

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// sortLeafSize is the range below which Sort falls back to a sequential
// sort of the leaf.
const sortLeafSize = 4096

// DivideAndConquer solves a recursively splittable problem on the pool.
// split either divides p into two independent sub-problems (ok true) or
// declares it a leaf (ok false); solve handles leaves; merge recombines p
// after both halves finished and may be nil for problems solved in place.
//
// The right half runs as a spawned task while the caller recurses into the
// left, so an in-task caller keeps its worker busy and helps while waiting.
func DivideAndConquer[P any](tc *TaskContext, p P, split func(P) (P, P, bool), solve func(P) error, merge func(P) error) error {
	l, r, ok := split(p)
	if !ok {
		return solve(p)
	}
	t, err := TryCreateTask(func(htc *TaskContext) error {
		return DivideAndConquer(htc, r, split, solve, merge)
	}, WithAttrs(AttrPFor))
	if err != nil {
		// Pool pressure: degrade to sequential.
		if e := DivideAndConquer(tc, l, split, solve, merge); e != nil {
			return e
		}
		if e := DivideAndConquer(tc, r, split, solve, merge); e != nil {
			return e
		}
		if merge != nil {
			return merge(p)
		}
		return nil
	}
	var lerr error
	if tc != nil {
		lerr = tc.Launch(t)
	} else {
		lerr = t.Launch()
	}
	if lerr != nil {
		t.ReleaseRef()
		return lerr
	}
	leftErr := DivideAndConquer(tc, l, split, solve, merge)
	var rerr error
	if tc != nil {
		rerr = tc.WaitFor(t)
	} else {
		rerr = t.WaitFor()
	}
	t.ReleaseRef()
	if leftErr != nil {
		return leftErr
	}
	if rerr != nil {
		return rerr
	}
	if merge != nil {
		return merge(p)
	}
	return nil
}

// sortProblem is one subrange of a merge sort: d is the range to sort, t the
// matching scratch space.
type sortProblem[T constraints.Ordered] struct {
	d, t []T
}

// Sort sorts data ascending with a parallel merge sort over the pool. Leaves
// below sortLeafSize sort sequentially.
func Sort[T constraints.Ordered](tc *TaskContext, data []T) error {
	if len(data) < 2 {
		return nil
	}
	p := sortProblem[T]{d: data, t: make([]T, len(data))}
	return DivideAndConquer(tc, p,
		func(p sortProblem[T]) (sortProblem[T], sortProblem[T], bool) {
			if len(p.d) <= sortLeafSize {
				return p, p, false
			}
			mid := len(p.d) / 2
			return sortProblem[T]{d: p.d[:mid], t: p.t[:mid]},
				sortProblem[T]{d: p.d[mid:], t: p.t[mid:]}, true
		},
		func(p sortProblem[T]) error {
			sort.Slice(p.d, func(i, j int) bool { return p.d[i] < p.d[j] })
			return nil
		},
		func(p sortProblem[T]) error {
			mergeSorted(p.d, p.t)
			return nil
		})
}

// mergeSorted merges the two sorted halves of d through scratch t.
func mergeSorted[T constraints.Ordered](d, t []T) {
	mid := len(d) / 2
	i, j, k := 0, mid, 0
	for i < mid && j < len(d) {
		if d[j] < d[i] {
			t[k] = d[j]
			j++
		} else {
			t[k] = d[i]
			i++
		}
		k++
	}
	copy(t[k:], d[i:mid])
	copy(t[k+mid-i:], d[j:])
	copy(d, t)
}

// Pipeline pushes every item through the stages in order without channels:
// stage s for item i depends on stage s-1 for the same item and on stage s
// for the previous item, so each stage observes items in submission order
// while distinct stages overlap across items. A failing stage propagates to
// the item's remaining stages through the usual dependency error path.
func Pipeline[T any](tc *TaskContext, items []T, stages ...func(tc *TaskContext, item *T) error) error {
	if len(items) == 0 || len(stages) == 0 {
		return nil
	}
	g, err := CreateGroup("pipeline")
	if err != nil {
		return err
	}
	defer g.ReleaseRef()

	rows := make([][]*Task, len(stages))
	for s := range stages {
		rows[s] = make([]*Task, len(items))
		stage := stages[s]
		for i := range items {
			item := &items[i]
			t, err := TryCreateTask(func(htc *TaskContext) error {
				return stage(htc, item)
			})
			if err != nil {
				abandonPipeline(rows)
				return err
			}
			rows[s][i] = t
			if s > 0 {
				if err := t.DependOn(rows[s-1][i]); err != nil {
					abandonPipeline(rows)
					return err
				}
			}
			if i > 0 {
				if err := t.DependOn(rows[s][i-1]); err != nil {
					abandonPipeline(rows)
					return err
				}
			}
		}
	}
	if g.Representative() == nil {
		g.SetRepresentative(rows[len(stages)-1][len(items)-1])
	}
	for _, row := range rows {
		for _, t := range row {
			var lerr error
			if tc != nil {
				lerr = tc.LaunchInto(t, g)
			} else {
				lerr = t.LaunchInto(g)
			}
			if lerr != nil {
				abandonPipeline(rows)
				return lerr
			}
		}
	}
	releasePipeline(rows)
	if tc != nil {
		return tc.WaitForGroup(g)
	}
	return g.WaitFor()
}

func releasePipeline(rows [][]*Task) {
	for _, row := range rows {
		for _, t := range row {
			if t != nil {
				t.ReleaseRef()
			}
		}
	}
}

// abandonPipeline cancels and drops partially constructed rows so unlaunched
// tasks still reach a terminal state and return to the allocator.
func abandonPipeline(rows [][]*Task) {
	for _, row := range rows {
		for _, t := range row {
			if t != nil {
				t.Cancel()
			}
		}
	}
	releasePipeline(rows)
}
