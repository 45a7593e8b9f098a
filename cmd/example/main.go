// Command example is a small tour of the rhea runtime: task graphs,
// parallel patterns and heterogeneous buffers on one machine.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"time"

	rhea "github.com/rheolabs/rhea"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Rhea Examples")
		fmt.Println("=============")
		fmt.Println()
		fmt.Println("Usage: go run cmd/example/main.go <example>")
		fmt.Println()
		fmt.Println("Available examples:")
		fmt.Println("  tasks    - Task graph with dependencies")
		fmt.Println("  pfor     - Parallel for over a large range")
		fmt.Println("  sort     - Parallel merge sort")
		fmt.Println("  pipeline - Ordered multi-stage pipeline")
		fmt.Println("  buffers  - Acquire-release buffer protocol")
		return
	}

	if err := rhea.Init(rhea.Config{}); err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	defer rhea.Shutdown()

	var err error
	switch os.Args[1] {
	case "tasks":
		err = runTasks()
	case "pfor":
		err = runParallelFor()
	case "sort":
		err = runSort()
	case "pipeline":
		err = runPipeline()
	case "buffers":
		err = runBuffers()
	default:
		fmt.Printf("Unknown example: %s\n", os.Args[1])
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "example failed: %v\n", err)
		os.Exit(1)
	}

	st := rhea.Stats()
	fmt.Printf("\nscheduler: %d submitted, %d executed, %d steals, %d inline\n",
		st.Submitted, st.Executed, st.Steals, st.InlineRuns)
}

// runTasks builds a diamond: two independent producers feed a consumer.
func runTasks() error {
	results := make([]int, 2)

	left := rhea.CreateTask(func(tc *rhea.TaskContext) error {
		results[0] = 21
		return nil
	})
	right := rhea.CreateTask(func(tc *rhea.TaskContext) error {
		results[1] = 21
		return nil
	})
	join := rhea.CreateTask(func(tc *rhea.TaskContext) error {
		fmt.Printf("tasks: joined result = %d\n", results[0]+results[1])
		return nil
	})
	join.DependOn(left)
	join.DependOn(right)

	for _, t := range []*rhea.Task{left, right, join} {
		if err := t.Launch(); err != nil {
			return err
		}
	}
	err := join.WaitFor()
	left.ReleaseRef()
	right.ReleaseRef()
	join.ReleaseRef()
	return err
}

func runParallelFor() error {
	const n = 1 << 22
	data := make([]float64, n)
	start := time.Now()
	err := rhea.ParallelFor(nil, 0, n, 1, func(i int) {
		data[i] = float64(i) * 0.5
	})
	if err != nil {
		return err
	}
	sum, err := rhea.Reduce(nil, 0, n, 1, 0.0,
		func(acc float64, i int) float64 { return acc + data[i] },
		func(a, b float64) float64 { return a + b })
	if err != nil {
		return err
	}
	fmt.Printf("pfor: filled and reduced %d elements in %v, sum=%.0f\n",
		n, time.Since(start), sum)
	return nil
}

func runSort() error {
	const n = 1 << 20
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	data := make([]int, n)
	for i := range data {
		data[i] = rng.Int()
	}
	start := time.Now()
	if err := rhea.Sort(nil, data); err != nil {
		return err
	}
	fmt.Printf("sort: %d ints in %v, sorted=%v\n",
		n, time.Since(start), sort.IntsAreSorted(data))
	return nil
}

func runPipeline() error {
	items := make([]int, 16)
	for i := range items {
		items[i] = i
	}
	err := rhea.Pipeline(nil, items,
		func(tc *rhea.TaskContext, v *int) error { *v = *v * 10; return nil },
		func(tc *rhea.TaskContext, v *int) error { *v = *v + 1; return nil },
	)
	if err != nil {
		return err
	}
	fmt.Printf("pipeline: %v\n", items)
	return nil
}

func runBuffers() error {
	buf := rhea.NewBuffer[float32](1024)
	defer buf.Destroy()

	data, release, err := rhea.AcquireSlice(buf, rhea.CPU, rhea.ReadWrite)
	if err != nil {
		return err
	}
	for i := range data {
		data[i] = float32(i)
	}
	release()

	data, release, err = rhea.AcquireSlice(buf, rhea.CPU, rhea.ReadOnly)
	if err != nil {
		return err
	}
	var sum float32
	for _, v := range data {
		sum += v
	}
	release()

	fmt.Printf("buffers: %d elements, sum=%.0f\n", len(data), sum)
	return nil
}
