package rhea

// Reduce folds fn over every index lo, lo+stride, ... strictly below hi and
// combines the partial accumulators with combine. Every tree node folds its
// own contiguous subrange starting from identity, and the partials are
// combined in sequential iteration order, so any associative combiner
// produces the sequential result.
//
// tc follows the ParallelFor convention: the calling task's context, or nil
// outside a task.
func Reduce[T any](tc *TaskContext, lo, hi, stride int, identity T, fn func(acc T, i int) T, combine func(a, b T) T) (T, error) {
	if stride <= 0 {
		return identity, NewInvalidArgError("Reduce", "stride must be positive")
	}
	if hi <= lo {
		return identity, nil
	}
	count := int64((hi - lo + stride - 1) / stride)
	tr := newWSTree(count, blockFor(count), func(first, last int64, acc any) any {
		a, ok := acc.(T)
		if !ok {
			a = identity
		}
		for j := first; j <= last; j++ {
			a = fn(a, lo+int(j)*stride)
		}
		return a
	})
	if err := tr.runParallel(tc, "reduce"); err != nil {
		return identity, err
	}
	out := tr.fold(identity, func(a, b any) any {
		return combine(a.(T), b.(T))
	})
	return out.(T), nil
}
