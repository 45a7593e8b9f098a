package rhea

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDequeOwnerLIFO(t *testing.T) {
	d := newDeque(8)
	defer d.destroy()
	tasks := make([]*Task, 4)
	for i := range tasks {
		tasks[i] = &Task{id: uint64(i + 1)}
		d.pushBottom(tasks[i])
	}
	for i := len(tasks) - 1; i >= 0; i-- {
		assert.Same(t, tasks[i], d.popBottom())
	}
	assert.Nil(t, d.popBottom())
}

func TestDequeStealFIFO(t *testing.T) {
	d := newDeque(8)
	defer d.destroy()
	tasks := make([]*Task, 4)
	for i := range tasks {
		tasks[i] = &Task{id: uint64(i + 1)}
		d.pushBottom(tasks[i])
	}
	for i := 0; i < len(tasks); i++ {
		assert.Same(t, tasks[i], d.steal())
	}
	assert.Nil(t, d.steal())
}

func TestDequeGrow(t *testing.T) {
	d := newDeque(2)
	defer d.destroy()
	const n = 1000
	for i := 0; i < n; i++ {
		d.pushBottom(&Task{id: uint64(i + 1)})
	}
	assert.Equal(t, int64(n), d.size())
	seen := 0
	for d.popBottom() != nil {
		seen++
	}
	assert.Equal(t, n, seen)
}

// Every pushed item is disposed exactly once: taken by the owner or stolen
// by exactly one thief, including the Le-Pop race on the last element.
func TestDequeConcurrentExactlyOnce(t *testing.T) {
	const (
		items   = 20000
		thieves = 4
	)
	d := newDeque(4) // small initial ring to exercise growth under contention
	defer d.destroy()

	taken := make([]atomic.Int32, items)
	var disposed atomic.Int64
	record := func(tk *Task) {
		if tk == nil {
			return
		}
		taken[tk.id].Add(1)
		disposed.Add(1)
	}

	var stop atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < thieves; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				record(d.steal())
			}
		}()
	}

	// Owner interleaves pushes with pops to keep the deque near empty, which
	// maximizes last-element races.
	for i := 0; i < items; i++ {
		d.pushBottom(&Task{id: uint64(i)})
		if i%3 == 0 {
			record(d.popBottom())
		}
	}
	for disposed.Load() < items {
		record(d.popBottom())
	}
	stop.Store(true)
	wg.Wait()

	for i := range taken {
		require.Equal(t, int32(1), taken[i].Load(), "item %d", i)
	}
}

func TestDequeSizeEstimate(t *testing.T) {
	d := newDeque(8)
	defer d.destroy()
	assert.Equal(t, int64(0), d.size())
	d.pushBottom(&Task{id: 1})
	d.pushBottom(&Task{id: 2})
	assert.Equal(t, int64(2), d.size())
	d.popBottom()
	assert.Equal(t, int64(1), d.size())
}
