package rhea

// ScanInclusive replaces data with its inclusive prefix combination under
// combine: data[i] becomes combine(data[0], ..., data[i]). The combiner must
// be associative.
//
// Three phases over fixed chunks: a parallel local scan per chunk, a
// sequential scan of the chunk totals on the caller, and a parallel pass
// folding each non-leftmost chunk's prefix into its elements.
func ScanInclusive[T any](tc *TaskContext, data []T, combine func(a, b T) T) error {
	n := len(data)
	if n < 2 {
		return nil
	}

	chunk := n / (degreeOfConcurrency() * 4)
	if chunk < 1 {
		chunk = 1
	}
	if chunk > DefaultBlockSize {
		chunk = DefaultBlockSize
	}
	chunks := (n + chunk - 1) / chunk

	totals := make([]T, chunks)
	err := ParallelFor(tc, 0, chunks, 1, func(c int) {
		first := c * chunk
		last := first + chunk
		if last > n {
			last = n
		}
		for i := first + 1; i < last; i++ {
			data[i] = combine(data[i-1], data[i])
		}
		totals[c] = data[last-1]
	})
	if err != nil {
		return err
	}

	// Exclusive scan of chunk totals; prefixes[0] is unused because the
	// leftmost chunk is already final after the local pass.
	prefixes := make([]T, chunks)
	for c := 1; c < chunks; c++ {
		if c == 1 {
			prefixes[c] = totals[0]
		} else {
			prefixes[c] = combine(prefixes[c-1], totals[c-1])
		}
	}

	return ParallelFor(tc, 1, chunks, 1, func(c int) {
		first := c * chunk
		last := first + chunk
		if last > n {
			last = n
		}
		for i := first; i < last; i++ {
			data[i] = combine(prefixes[c], data[i])
		}
	})
}
