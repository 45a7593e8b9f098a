package rhea

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// sharedQueue is a mutex-guarded FIFO used for the main queue, the foreign
// queue and the per-cluster hint queues. Unlike the per-worker deques it has
// no owner; any participant may push or pop.
type sharedQueue struct {
	mu    sync.Mutex
	items []*Task
}

func (q *sharedQueue) push(t *Task) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
}

func (q *sharedQueue) pop() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t
}

func (q *sharedQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// deviceQueue feeds one non-CPU executor. A dispatcher goroutine consumes
// it and forwards tasks to the back-end.
type deviceQueue struct {
	ex Executor
	ch chan *Task
}

// SchedStats is a snapshot of scheduler counters.
type SchedStats struct {
	Submitted  uint64
	Executed   uint64
	Steals     uint64
	Parks      uint64
	InlineRuns uint64
	Spares     uint64
}

// worker is one scheduling context: a goroutine with its own deque and a
// cluster assignment. Transient workers stand in for blocked ones and are
// not steal victims.
type worker struct {
	id        int
	sched     *scheduler
	dq        *deque
	cluster   DeviceClass
	rngState  uint64
	transient bool
	inline    int // inline execution depth guard
	local     *localStore
}

// scheduler owns the worker pool, the queue list and the dispatcher
// goroutines. Workers follow pop-local, cluster hint, steal, foreign,
// park - in that order.
type scheduler struct {
	rt      *runtimeState
	workers []*worker

	main    sharedQueue
	foreign sharedQueue
	bigQ    sharedQueue
	littleQ sharedQueue

	deviceMu sync.RWMutex
	device   map[DeviceClass]*deviceQueue

	parkMu   sync.Mutex
	parkCond *sync.Cond
	idle     int
	wakeups  int
	stopped  atomic.Bool

	queued atomic.Int64 // enqueued but not yet disposed

	wg       sync.WaitGroup
	deviceWg sync.WaitGroup

	stats struct {
		submitted  atomic.Uint64
		executed   atomic.Uint64
		steals     atomic.Uint64
		parks      atomic.Uint64
		inlineRuns atomic.Uint64
		spares     atomic.Uint64
	}

	threadCreated   func(workerID int)
	threadDestroyed func(workerID int)

	local *localStore
}

func newScheduler(rt *runtimeState, cfg Config, dev *Device) *scheduler {
	s := &scheduler{
		rt:              rt,
		device:          make(map[DeviceClass]*deviceQueue),
		threadCreated:   cfg.ThreadCreated,
		threadDestroyed: cfg.ThreadDestroyed,
		local:           newLocalStore(),
	}
	s.parkCond = sync.NewCond(&s.parkMu)

	big := dev.BigCores
	little := dev.LittleCores
	total := big + little
	for i := 0; i < total; i++ {
		cluster := CPUBig
		if i >= big {
			cluster = CPULittle
		}
		w := &worker{
			id:       i,
			sched:    s,
			dq:       newDeque(DefaultDequeCapacity),
			cluster:  cluster,
			rngState: uint64(i)*0x9E3779B97F4A7C15 + 1,
			local:    newLocalStore(),
		}
		s.workers = append(s.workers, w)
	}
	return s
}

func (s *scheduler) start(pin bool) {
	for _, w := range s.workers {
		s.wg.Add(1)
		go w.run(pin)
	}
}

// attachExecutor creates the device queue and dispatcher for a back-end.
func (s *scheduler) attachExecutor(ex Executor) {
	q := &deviceQueue{ex: ex, ch: make(chan *Task, 64)}
	s.deviceMu.Lock()
	s.device[ex.Class()] = q
	s.deviceMu.Unlock()
	s.deviceWg.Add(1)
	go s.dispatch(q)
}

func (s *scheduler) deviceQueueFor(c DeviceClass) *deviceQueue {
	s.deviceMu.RLock()
	defer s.deviceMu.RUnlock()
	return s.device[c]
}

// enqueue hands a Ready task to the appropriate queue. w is the submitting
// worker, or nil for foreign threads. With notify=false the caller batches
// submissions and follows up with notifyAll.
func (s *scheduler) enqueue(w *worker, t *Task, notify bool) {
	s.stats.submitted.Add(1)
	s.queued.Add(1)
	// The queue entry holds its own reference: a task canceled (and released
	// by everyone else) while queued must not be recycled under the stale
	// pointer still sitting in a deque or channel. Dropped on disposal.
	t.refCount.retain()

	if t.device&(GPU|DSP) != 0 {
		s.enqueueDevice(t)
		return
	}

	// Inline execution: at most one level deep, only on a worker, and only
	// for tasks that permit it.
	if w != nil && !w.transient && t.attrs&AttrInlined != 0 && w.inline == 0 &&
		t.attrs&(AttrBigCore|AttrLittleCore) == 0 {
		s.stats.inlineRuns.Add(1)
		w.inline++
		s.execute(w, t)
		w.inline--
		return
	}

	switch {
	case t.attrs&AttrBigCore != 0:
		s.bigQ.push(t)
	case t.attrs&AttrLittleCore != 0:
		s.littleQ.push(t)
	case w != nil:
		w.dq.pushBottom(t)
	case t.attrs&AttrInlined != 0:
		// Inline tasks from outside the pool land on the main queue and run
		// on the next Drain (or are picked up by a starving worker).
		s.main.push(t)
	default:
		s.foreign.push(t)
	}
	if notify {
		s.notifyOne()
	}
}

func (s *scheduler) enqueueDevice(t *Task) {
	q := s.deviceQueueFor(t.device)
	if q == nil {
		s.queued.Add(-1)
		if t.casState(StateReady, StateFailed) {
			t.finish(nil, StateFailed, &Error{
				Kind:    KindDeviceNotAvailable,
				Op:      "Launch",
				Message: "no executor registered for " + t.device.String(),
			})
		}
		t.refCount.release(t.destroy)
		return
	}
	q.ch <- t
	s.notifyOne()
}

// notifyOne deposits one wakeup token and wakes a parked worker. Tokens are
// sticky: a notification arriving before the worker parks is not lost.
func (s *scheduler) notifyOne() {
	s.parkMu.Lock()
	if s.wakeups < len(s.workers) {
		s.wakeups++
	}
	s.parkCond.Signal()
	s.parkMu.Unlock()
}

// notifyAll deposits up to n wakeup tokens after a bulk enqueue with
// suppressed notification. n <= 0 wakes everyone.
func (s *scheduler) notifyAll(n int) {
	s.parkMu.Lock()
	if n <= 0 || n > len(s.workers) {
		n = len(s.workers)
	}
	if s.wakeups < n {
		s.wakeups = n
	}
	s.parkCond.Broadcast()
	s.parkMu.Unlock()
}

func (s *scheduler) park(w *worker) {
	s.parkMu.Lock()
	s.stats.parks.Add(1)
	s.idle++
	for s.wakeups == 0 && !s.stopped.Load() {
		s.parkCond.Wait()
	}
	if s.wakeups > 0 {
		s.wakeups--
	}
	s.idle--
	s.parkMu.Unlock()
}

func (w *worker) run(pin bool) {
	s := w.sched
	defer s.wg.Done()
	if pin {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		pinToCluster(w.cluster, w.id)
	}
	if s.threadCreated != nil {
		s.threadCreated(w.id)
	}
	defer func() {
		if w.local != nil {
			w.local.runDestructors()
		}
		if s.threadDestroyed != nil {
			s.threadDestroyed(w.id)
		}
	}()

	spins := 0
	for {
		if t := w.findWork(); t != nil {
			spins = 0
			s.execute(w, t)
			continue
		}
		if s.stopped.Load() {
			return
		}
		spins++
		if spins < ParkSpinThreshold {
			runtime.Gosched()
			continue
		}
		s.park(w)
		spins = 0
	}
}

// findWork implements the worker scan order: local deque, own cluster hint
// queue, random-victim steal, foreign queue, main queue, and finally the
// other cluster's hint queue (hints bias, they do not constrain).
func (w *worker) findWork() *Task {
	if t := w.dq.popBottom(); t != nil {
		return t
	}
	s := w.sched
	if w.cluster == CPUBig {
		if t := s.bigQ.pop(); t != nil {
			return t
		}
	} else {
		if t := s.littleQ.pop(); t != nil {
			return t
		}
	}
	for i := 0; i < StealAttempts; i++ {
		if t := w.stealOnce(); t != nil {
			s.stats.steals.Add(1)
			return t
		}
	}
	if t := s.foreign.pop(); t != nil {
		return t
	}
	if t := s.main.pop(); t != nil {
		return t
	}
	if s.rt.affinityMode() != AffinityOverrideLocal {
		if w.cluster == CPUBig {
			if t := s.littleQ.pop(); t != nil {
				return t
			}
		} else {
			if t := s.bigQ.pop(); t != nil {
				return t
			}
		}
	}
	return nil
}

func (w *worker) stealOnce() *Task {
	s := w.sched
	n := len(s.workers)
	if n < 2 {
		return nil
	}
	victim := s.workers[w.nextRand()%uint64(n)]
	if victim == w {
		return nil
	}
	return victim.dq.steal()
}

// nextRand is a xorshift64 step for victim selection.
func (w *worker) nextRand() uint64 {
	x := w.rngState
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	w.rngState = x
	return x
}

// helpUntil drains work cooperatively while waiting for done, so a worker
// blocked in a nested wait keeps the pool busy.
func (w *worker) helpUntil(done <-chan struct{}) {
	if done == nil {
		return
	}
	for {
		select {
		case <-done:
			return
		default:
		}
		t := w.findWork()
		if t == nil {
			select {
			case <-done:
				return
			case <-time.After(50 * time.Microsecond):
			}
			continue
		}
		w.sched.execute(w, t)
	}
}

// execute runs a dequeued task on this worker. Stale entries whose task was
// canceled after enqueue are disposed without running user code.
func (s *scheduler) execute(w *worker, t *Task) {
	defer s.queued.Add(-1)
	defer t.refCount.release(t.destroy) // queue entry reference

	if t.cancelReq.Load() || t.groupCanceled() {
		t.tryFinishCanceled(w)
		return
	}
	if !t.casState(StateReady, StateRunning) {
		return // settled concurrently
	}
	if err := t.inheritedFailure(); err != nil {
		// A predecessor failed or was canceled and the task did not opt into
		// recovery: propagate without running the body.
		t.state.Store(int32(StateFailed))
		t.finish(w, StateFailed, err)
		return
	}

	stopSpare := func() {}
	if t.attrs&AttrBlocking != 0 {
		stopSpare = s.addSpare()
	}
	defer stopSpare()

	if err := t.acquireHolds(); err != nil {
		t.state.Store(int32(StateFailed))
		t.finish(w, StateFailed, err)
		return
	}

	tc := &TaskContext{task: t, w: w, rt: s.rt}
	err := s.runBody(tc)
	s.stats.executed.Add(1)

	outcome := StateCompleted
	switch {
	case err == nil:
		if t.cancelReq.Load() {
			// The body ran to completion despite the request; completion wins.
			outcome = StateCompleted
		}
	case IsCanceled(err):
		outcome = StateCanceled
	default:
		outcome = StateFailed
	}
	t.state.Store(int32(outcome))
	t.finish(w, outcome, err)
}

// runBody invokes the user function, converting panics into generic task
// failures when panic recovery is enabled.
func (s *scheduler) runBody(tc *TaskContext) (err error) {
	if !s.rt.cfg.DisablePanicRecovery {
		defer func() {
			if r := recover(); r != nil {
				err = &Error{
					Kind:    KindTaskGeneric,
					Op:      "Execute",
					Message: "task body panicked",
					Context: r,
				}
			}
		}()
	}
	return tc.task.fn(tc)
}

// dispatch consumes one device queue, forwarding tasks to the executor and
// completing them with device-classified outcomes.
func (s *scheduler) dispatch(q *deviceQueue) {
	defer s.deviceWg.Done()
	for t := range q.ch {
		s.runDeviceTask(q, t)
	}
}

func (s *scheduler) runDeviceTask(q *deviceQueue, t *Task) {
	defer s.queued.Add(-1)
	defer t.refCount.release(t.destroy) // queue entry reference

	if t.cancelReq.Load() || t.groupCanceled() {
		t.tryFinishCanceled(nil)
		return
	}
	if !t.casState(StateReady, StateRunning) {
		return
	}
	if err := t.inheritedFailure(); err != nil {
		t.state.Store(int32(StateFailed))
		t.finish(nil, StateFailed, err)
		return
	}
	if err := t.acquireHolds(); err != nil {
		t.state.Store(int32(StateFailed))
		t.finish(nil, StateFailed, err)
		return
	}
	err := q.ex.Launch(t.kernel, t.kernelArgs)
	s.stats.executed.Add(1)
	if err == nil {
		t.state.Store(int32(StateCompleted))
		t.finish(nil, StateCompleted, nil)
		return
	}
	kind := KindTaskGeneric
	switch q.ex.Class() {
	case GPU:
		kind = KindTaskGPUFailure
	case DSP:
		kind = KindTaskDSPFailure
	}
	t.state.Store(int32(StateFailed))
	t.finish(nil, StateFailed, &Error{
		Kind:    kind,
		Op:      "Launch",
		Err:     err,
		Message: "device kernel failed on " + q.ex.Class().String(),
	})
}

// addSpare raises the worker head-count while a blocking task occupies its
// context, so the pool keeps its throughput during external waits. The spare
// lives until the returned stop function runs (the blocking task's terminal
// transition) so work submitted at any point of the wait finds a runner.
func (s *scheduler) addSpare() func() {
	s.stats.spares.Add(1)
	stop := make(chan struct{})
	w := &worker{
		id:        -1,
		sched:     s,
		dq:        newDeque(DefaultDequeCapacity),
		cluster:   CPUBig,
		rngState:  uint64(time.Now().UnixNano()) | 1,
		transient: true,
		local:     newLocalStore(),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer w.local.runDestructors()
		for !s.stopped.Load() {
			if t := w.findWork(); t != nil {
				s.execute(w, t)
				continue
			}
			select {
			case <-stop:
				s.flushLocal(w)
				return
			case <-time.After(50 * time.Microsecond):
			}
		}
		s.flushLocal(w)
	}()
	return func() { close(stop) }
}

// flushLocal strands nothing: leftover local work moves to the foreign queue.
func (s *scheduler) flushLocal(w *worker) {
	for {
		t := w.dq.popBottom()
		if t == nil {
			return
		}
		s.foreign.push(t)
		s.notifyOne()
	}
}

// quiesce waits until no enqueued task remains undisposed.
func (s *scheduler) quiesce() {
	for s.queued.Load() > 0 {
		s.notifyAll(0)
		time.Sleep(100 * time.Microsecond)
	}
}

// stop parks the pool permanently and reclaims queue memory.
func (s *scheduler) stop() {
	s.stopped.Store(true)
	s.parkMu.Lock()
	s.parkCond.Broadcast()
	s.parkMu.Unlock()
	s.wg.Wait()

	s.deviceMu.Lock()
	for _, q := range s.device {
		close(q.ch)
	}
	s.device = make(map[DeviceClass]*deviceQueue)
	s.deviceMu.Unlock()
	s.deviceWg.Wait()

	for _, w := range s.workers {
		w.dq.destroy()
	}
	s.local.runDestructors()
}

// Stats returns a snapshot of scheduler counters.
func (s *scheduler) Stats() SchedStats {
	return SchedStats{
		Submitted:  s.stats.submitted.Load(),
		Executed:   s.stats.executed.Load(),
		Steals:     s.stats.steals.Load(),
		Parks:      s.stats.parks.Load(),
		InlineRuns: s.stats.inlineRuns.Load(),
		Spares:     s.stats.spares.Load(),
	}
}
