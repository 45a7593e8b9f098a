package rhea

// blockFor sizes the owner block so the iteration space splits comfortably
// across the pool before blocks get too coarse.
func blockFor(count int64) int64 {
	blk := count / int64(degreeOfConcurrency()*4)
	if blk < 1 {
		blk = 1
	}
	if blk > DefaultBlockSize {
		blk = DefaultBlockSize
	}
	return blk
}

// ParallelFor applies body to every index lo, lo+stride, ... strictly below
// hi, distributing the range across the worker pool through the
// work-stealing tree. Each index is visited exactly once; iteration order is
// unspecified. The body must not acquire buffers already held by the calling
// task with an incompatible mode.
//
// tc is the calling task's context when invoked from inside a task body, nil
// otherwise. Passing the context lets the caller's worker help with helper
// tasks instead of blocking.
func ParallelFor(tc *TaskContext, lo, hi, stride int, body func(i int)) error {
	if stride <= 0 {
		return NewInvalidArgError("ParallelFor", "stride must be positive")
	}
	if hi <= lo {
		return nil
	}
	count := int64((hi - lo + stride - 1) / stride)
	tr := newWSTree(count, blockFor(count), func(first, last int64, acc any) any {
		for j := first; j <= last; j++ {
			body(lo + int(j)*stride)
		}
		return nil
	})
	return tr.runParallel(tc, "pfor")
}
