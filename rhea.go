package rhea

import (
	"sync"
	"sync/atomic"

	"github.com/rheolabs/rhea/pool"
)

// Config tunes runtime initialization. The zero value asks for one worker
// per execution context, split across the big and little clusters per the
// probed (or environment-overridden) topology, with panic recovery on.
type Config struct {
	// NumWorkers caps the pool size; 0 means one per execution context.
	NumWorkers int
	// BigWorkers and LittleWorkers fix the cluster split; 0 defers to the
	// device probe and the environment.
	BigWorkers    int
	LittleWorkers int
	// PinWorkers binds workers to their cluster's cores where the platform
	// supports it.
	PinWorkers bool
	// DisablePanicRecovery lets task panics crash the process instead of
	// being captured as generic task failures.
	DisablePanicRecovery bool
	// ThreadCreated and ThreadDestroyed run once per worker start and stop.
	ThreadCreated   func(workerID int)
	ThreadDestroyed func(workerID int)
}

// runtimeState consolidates all global mutable state: the worker pool, the
// group lattice, the executor registry and the task allocator. It is created
// by Init and torn down by Shutdown; nothing here depends on package
// initialization order.
type runtimeState struct {
	cfg      Config
	dev      *Device
	sched    *scheduler
	lattice  *lattice
	execs    *executorRegistry
	taskPool *pool.FreeList[Task]
	taskIDs  atomic.Uint64
	affinity atomic.Pointer[AffinitySettings]
	stopping atomic.Bool
}

var (
	initMu sync.Mutex
	global atomic.Pointer[runtimeState]
)

func currentRuntime() *runtimeState {
	return global.Load()
}

func (rt *runtimeState) running() bool {
	return !rt.stopping.Load()
}

func (rt *runtimeState) registerExecutor(ex Executor) error {
	if err := rt.execs.register(ex); err != nil {
		return err
	}
	rt.sched.attachExecutor(ex)
	return nil
}

func (rt *runtimeState) affinityMode() AffinityMode {
	if s := rt.affinity.Load(); s != nil {
		return s.Mode
	}
	return AffinityAllowLocal
}

// Init establishes the worker pool and the global runtime state. It is
// idempotent under concurrent callers: the first caller initializes, the
// rest observe the established runtime.
func Init(cfg Config) error {
	initMu.Lock()
	defer initMu.Unlock()
	if global.Load() != nil {
		return nil
	}

	dev := DefaultDevice()
	if cfg.BigWorkers > 0 {
		dev.BigCores = cfg.BigWorkers
	}
	if cfg.LittleWorkers > 0 {
		dev.LittleCores = cfg.LittleWorkers
	}
	if n := envInt(EnvNumWorkers, cfg.NumWorkers); n > 0 {
		// A total cap reshapes the split proportionally, big-first.
		if n < dev.BigCores+dev.LittleCores {
			big := (n + 1) / 2
			dev.BigCores = big
			dev.LittleCores = n - big
		} else {
			dev.BigCores = (n + 1) / 2
			dev.LittleCores = n - dev.BigCores
		}
	}
	if dev.BigCores+dev.LittleCores < 1 {
		dev.BigCores = 1
	}

	rt := &runtimeState{
		cfg:      cfg,
		dev:      dev,
		lattice:  newLattice(),
		execs:    newExecutorRegistry(),
		taskPool: pool.NewFreeList[Task](PoolSlabSize),
	}
	rt.affinity.Store(defaultAffinity())
	rt.sched = newScheduler(rt, cfg, dev)

	// Adopt executors registered before Init.
	for _, c := range pendingExecutors.classes() {
		if ex, ok := pendingExecutors.lookup(c); ok {
			_ = rt.execs.register(ex)
		}
	}
	pendingExecutors = newExecutorRegistry()

	global.Store(rt)
	rt.sched.start(cfg.PinWorkers)
	for _, c := range rt.execs.classes() {
		if ex, ok := rt.execs.lookup(c); ok {
			rt.sched.attachExecutor(ex)
		}
	}
	return nil
}

// Shutdown drains outstanding work and stops the worker pool. Safe to call
// without a prior Init; concurrent callers are serialized.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()
	rt := global.Load()
	if rt == nil {
		return nil
	}
	rt.stopping.Store(true)
	rt.sched.quiesce()
	rt.sched.stop()
	global.Store(nil)
	return nil
}

// Drain executes tasks pending on the main queue on the calling goroutine
// and returns the number run. The initializing thread (or any participant)
// may call it to run inline work dispatched from outside the pool.
func Drain() int {
	rt := currentRuntime()
	if rt == nil {
		return 0
	}
	n := 0
	for {
		t := rt.sched.main.pop()
		if t == nil {
			return n
		}
		rt.sched.execute(nil, t)
		n++
	}
}

// Stats returns scheduler counters, or the zero snapshot when the runtime
// is down.
func Stats() SchedStats {
	rt := currentRuntime()
	if rt == nil {
		return SchedStats{}
	}
	return rt.sched.Stats()
}

// NumWorkers reports the pool size.
func NumWorkers() int {
	rt := currentRuntime()
	if rt == nil {
		return 0
	}
	return len(rt.sched.workers)
}

// HostDevice reports the probed device descriptor.
func HostDevice() *Device {
	rt := currentRuntime()
	if rt == nil {
		return DefaultDevice()
	}
	return rt.dev
}

// degreeOfConcurrency is the default helper count for patterns.
func degreeOfConcurrency() int {
	n := NumWorkers()
	if n < 1 {
		n = 1
	}
	return n
}
