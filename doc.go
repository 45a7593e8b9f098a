// Package rhea is a task-graph runtime for heterogeneous mobile SoCs: an
// asymmetric CPU cluster (performance and efficiency cores), an integrated
// GPU, and a programmable DSP.
//
// User kernels are wrapped in tasks, composed into a directed acyclic graph
// with explicit dependency edges, grouped for bulk cancellation and waiting,
// and executed by a work-stealing worker pool. Buffers carry data between
// tasks; their contents migrate between device-visible arenas on demand
// through an acquire/release protocol.
//
// Example usage:
//
//	rhea.Init(rhea.Config{})
//	defer rhea.Shutdown()
//
//	buf := rhea.NewBuffer[float32](1024)
//
//	produce := rhea.CreateTask(func(tc *rhea.TaskContext) error {
//		s, release, err := rhea.AcquireSlice(buf, rhea.CPU, rhea.ReadWrite)
//		if err != nil {
//			return err
//		}
//		defer release()
//		for i := range s {
//			s[i] = float32(i)
//		}
//		return nil
//	})
//	consume := rhea.CreateTask(func(tc *rhea.TaskContext) error {
//		// runs only after produce completed
//		return nil
//	})
//	consume.DependOn(produce)
//	produce.Launch()
//	consume.Launch()
//	if err := consume.WaitFor(); err != nil {
//		// inspect rhea.ErrorKind via errors.As
//	}
//
// Data-parallel patterns (ParallelFor, Reduce, ScanInclusive, Sort) cooperate
// through an adaptive work-stealing tree so idle workers can take half of
// another worker's remaining iteration range.
package rhea
