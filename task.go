package rhea

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TaskState is the position of a task in its life cycle. Transitions are
// monotone; states at or beyond StateCompleted are terminal.
type TaskState int32

const (
	// StateUnlaunched: created, edges and groups may still be attached.
	StateUnlaunched TaskState = iota
	// StateLaunched: submitted, waiting for predecessors.
	StateLaunched
	// StateReady: all predecessors completed, queued for a worker.
	StateReady
	// StateRunning: a worker is executing the task body.
	StateRunning
	// StateCompleted: terminal, body returned nil.
	StateCompleted
	// StateFailed: terminal, body or executor returned an error.
	StateFailed
	// StateCanceled: terminal, canceled before or during execution.
	StateCanceled
)

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	return s >= StateCompleted
}

// String returns the state as a string.
func (s TaskState) String() string {
	switch s {
	case StateUnlaunched:
		return "Unlaunched"
	case StateLaunched:
		return "Launched"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// TaskAttr is the immutable attribute bit set fixed at creation.
type TaskAttr uint32

const (
	// AttrBlocking marks a task that performs unbounded external waits.
	// The scheduler raises the worker head-count for its duration.
	AttrBlocking TaskAttr = 1 << iota
	// AttrBigCore biases dispatch toward the performance cluster.
	AttrBigCore
	// AttrLittleCore biases dispatch toward the efficiency cluster.
	AttrLittleCore
	// AttrYield marks a body that calls Yield at safe points.
	AttrYield
	// AttrInlined permits execution on the launching worker's stack.
	AttrInlined
	// AttrPFor marks internal helper tasks of data-parallel patterns.
	AttrPFor
)

// TaskFunc is the user code a CPU task runs. A non-nil return marks the
// task Failed; returning ErrTaskCanceled from a cancellation check point
// marks it Canceled.
type TaskFunc func(tc *TaskContext) error

// Task is the fundamental unit of scheduling.
//
// A Task is reference counted: the creating call returns it with one user
// reference, and the runtime holds its own reference until the terminal
// transition is fully processed. Destruction requires both a zero count and
// a terminal state.
type Task struct {
	refCount
	id     uint64
	attrs  TaskAttr
	device DeviceClass

	fn         TaskFunc
	kernel     DeviceKernel
	kernelArgs []any

	state     atomic.Int32
	cancelReq atomic.Bool

	mu           sync.Mutex
	preds        []*Task
	succs        []*Task
	pendingPreds int32
	group        *Group
	extraGroups  []*Group
	counted      []*Group // outstanding-counter snapshot taken at each join
	holds        []bufferHold
	acquired     *AcquireScope
	err          error
	inherited    []error
	recover      bool
	notified     bool

	// finish-after support
	finishStub     *Task
	stubTarget     *Task
	deferrals      int32
	bodyDone       bool
	pendingOutcome TaskState
	pendingErr     error

	done  chan struct{}
	local *localStore
	rt    *runtimeState
}

// bufferHold describes one buffer argument: the buffer is acquired on the
// hold's device before the body runs and released on the terminal path.
type bufferHold struct {
	target AcquireTarget
	device DeviceClass
	mode   AccessMode
}

// TaskOption configures task creation.
type TaskOption func(*Task) error

// OnDevice routes the task to the given device class. GPU and DSP tasks
// must also carry a device kernel.
func OnDevice(c DeviceClass) TaskOption {
	return func(t *Task) error {
		t.device = c
		return nil
	}
}

// WithAttrs sets attribute bits. Conflicting combinations are rejected.
func WithAttrs(a TaskAttr) TaskOption {
	return func(t *Task) error {
		t.attrs |= a
		return nil
	}
}

// WithDeviceKernel attaches a pre-compiled kernel for a GPU or DSP task.
func WithDeviceKernel(k DeviceKernel, args ...any) TaskOption {
	return func(t *Task) error {
		t.kernel = k
		t.kernelArgs = args
		t.device = k.KernelClass()
		return nil
	}
}

// WithBuffer declares a buffer argument acquired on the given device and
// mode for the task's duration.
func WithBuffer(target AcquireTarget, device DeviceClass, mode AccessMode) TaskOption {
	return func(t *Task) error {
		t.holds = append(t.holds, bufferHold{target: target, device: device, mode: mode})
		return nil
	}
}

// WithRecovery opts the task into running even when predecessors failed;
// the body can inspect inherited errors through the context.
func WithRecovery() TaskOption {
	return func(t *Task) error {
		t.recover = true
		return nil
	}
}

// CreateTask builds a task around user code. The returned handle carries one
// user reference; Release it when no longer needed. The task starts
// Unlaunched and runs only after Launch.
func CreateTask(fn TaskFunc, opts ...TaskOption) *Task {
	t, err := createTask(fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// TryCreateTask is CreateTask returning attribute validation errors instead
// of panicking.
func TryCreateTask(fn TaskFunc, opts ...TaskOption) (*Task, error) {
	return createTask(fn, opts...)
}

func createTask(fn TaskFunc, opts ...TaskOption) (*Task, error) {
	rt := currentRuntime()
	if rt == nil {
		return nil, ErrNotRunning
	}
	t := rt.taskPool.Get()
	t.rt = rt
	t.id = rt.taskIDs.Add(1)
	t.fn = fn
	t.device = CPU
	t.done = make(chan struct{})
	t.pendingOutcome = StateUnlaunched
	t.state.Store(int32(StateUnlaunched))
	// One reference for the user handle, one for the runtime until terminal.
	t.refCount.init(2)
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Task) validate() error {
	if t.attrs&AttrBigCore != 0 && t.attrs&AttrLittleCore != 0 {
		return ErrConflictingAttrs
	}
	if t.attrs&AttrBlocking != 0 && t.attrs&AttrInlined != 0 {
		return ErrConflictingAttrs
	}
	if !t.device.single() && !t.device.IsCPU() {
		return NewInvalidArgError("CreateTask", "task device must be cpu, gpu or dsp")
	}
	if t.device&(GPU|DSP) != 0 && t.kernel == nil {
		return NewInvalidArgError("CreateTask", "gpu/dsp task requires a device kernel")
	}
	if t.device.IsCPU() && t.fn == nil && t.kernel == nil {
		return NewInvalidArgError("CreateTask", "task requires user code")
	}
	return nil
}

// ID returns the unique task id.
func (t *Task) ID() uint64 { return t.id }

// State returns the current state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// Attrs returns the attribute bits.
func (t *Task) Attrs() TaskAttr { return t.attrs }

// Retain adds a user reference.
func (t *Task) Retain() { t.refCount.retain() }

// ReleaseRef drops a user reference. The task is destroyed once no
// references remain and it is terminal.
func (t *Task) ReleaseRef() {
	t.refCount.release(t.destroy)
}

func (t *Task) destroy() {
	if !t.State().Terminal() {
		panic("rhea: task destroyed before terminal state")
	}
	rt := t.rt
	if t.local != nil {
		t.local.runDestructors()
	}
	grp := t.group
	extras := t.extraGroups
	*t = Task{} // clear edges and closures before recycling
	if grp != nil {
		grp.releaseRef()
	}
	for _, g := range extras {
		g.releaseRef()
	}
	rt.taskPool.Put(t)
}

// DependOn adds the dependency edge pred → t. It fails when t is past
// Launched, when pred == t, and is idempotent for duplicate edges.
func (t *Task) DependOn(pred *Task) error {
	if pred == t {
		return NewInvalidArgError("DependOn", "task cannot depend on itself")
	}
	t.mu.Lock()
	if s := t.State(); s > StateLaunched {
		t.mu.Unlock()
		return NewInvalidArgError("DependOn", fmt.Sprintf("successor already %s", s))
	}
	for _, p := range t.preds {
		if p == pred {
			t.mu.Unlock()
			return nil // duplicate edge, no second notification
		}
	}
	t.preds = append(t.preds, pred)
	t.pendingPreds++
	t.mu.Unlock()

	pred.mu.Lock()
	if TaskState(pred.state.Load()).Terminal() {
		pred.mu.Unlock()
		// Predecessor already settled; resolve the edge immediately.
		t.predDone(nil, pred)
		return nil
	}
	pred.succs = append(pred.succs, t)
	pred.mu.Unlock()
	return nil
}

// Launch transitions the task to Launched and schedules it once its
// predecessor count drains. Launching twice is an error.
func (t *Task) Launch() error {
	return t.launchInto(nil)
}

// LaunchInto joins the task to a group and launches it.
func (t *Task) LaunchInto(g *Group) error {
	return t.launchInto(g)
}

func (t *Task) launchInto(g *Group) error {
	rt := t.rt
	if rt == nil || !rt.running() {
		return ErrNotRunning
	}
	if g != nil {
		if err := t.JoinGroup(g); err != nil {
			return err
		}
	}
	if !t.casState(StateUnlaunched, StateLaunched) {
		return NewInvalidArgError("Launch", "task already launched")
	}
	// Canceled between creation and launch, or launched into a canceled
	// group: settle without scheduling.
	if t.cancelReq.Load() || t.groupCanceled() {
		t.tryFinishCanceled(nil)
		return nil
	}
	t.mu.Lock()
	ready := t.pendingPreds == 0
	t.mu.Unlock()
	if ready {
		t.makeReady(nil)
	}
	return nil
}

// JoinGroup counts the task into a group (and the ancestors that observe
// descendant tasks). Fails when the task is already terminal.
func (t *Task) JoinGroup(g *Group) error {
	if g == nil {
		return NewInvalidArgError("JoinGroup", "nil group")
	}
	if t.State().Terminal() {
		return NewInvalidArgError("JoinGroup", "task already terminal")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.group == g {
		return nil
	}
	for _, e := range t.extraGroups {
		if e == g {
			return nil
		}
	}
	g.retainRef()
	t.counted = append(t.counted, g.taskJoined()...)
	if t.group == nil {
		t.group = g
	} else {
		t.extraGroups = append(t.extraGroups, g)
	}
	return nil
}

// Cancel requests cancellation. Tasks not yet Running settle as Canceled
// immediately; a Running body observes the request at its next cancellation
// check point. Cancel is idempotent and always best-effort.
func (t *Task) Cancel() {
	t.cancelReq.Store(true)
	t.tryFinishCanceled(nil)
}

// tryFinishCanceled moves a not-yet-Running task to Canceled.
func (t *Task) tryFinishCanceled(w *worker) {
	for {
		s := TaskState(t.state.Load())
		if s == StateRunning || s.Terminal() {
			return
		}
		if t.casState(s, StateCanceled) {
			t.finish(w, StateCanceled, ErrTaskCanceled)
			return
		}
	}
}

// WaitFor blocks until the task is terminal and returns its outcome:
// nil for Completed, the captured error for Failed, and the cancellation
// error for Canceled.
func (t *Task) WaitFor() error {
	<-t.done
	return t.outcome()
}

// WaitForTimeout is WaitFor with a relative deadline. Returns ErrTimeout if
// the task has not settled in time; the task keeps running.
func (t *Task) WaitForTimeout(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.done:
		return t.outcome()
	case <-timer.C:
		return ErrTimeout
	}
}

func (t *Task) outcome() error {
	switch t.State() {
	case StateCompleted:
		return nil
	case StateCanceled:
		t.mu.Lock()
		err := t.err
		t.mu.Unlock()
		if err == nil {
			err = ErrTaskCanceled
		}
		return err
	case StateFailed:
		t.mu.Lock()
		err := t.err
		t.mu.Unlock()
		if err == nil {
			err = newTaskError(KindTaskGeneric, "WaitFor", "task failed", nil)
		}
		return err
	default:
		panic("rhea: outcome of non-terminal task")
	}
}

// FinishAfter defers t's completion until pred and stubFn have both
// completed. The stub task is created lazily on first use and reused for
// additional predecessors of the same t.
func (t *Task) FinishAfter(pred *Task, stubFn TaskFunc) error {
	if t.State().Terminal() {
		return NewInvalidArgError("FinishAfter", "task already terminal")
	}
	t.mu.Lock()
	stub := t.finishStub
	if stub != nil && stub.State().Terminal() {
		// The previous stub already settled; it cannot absorb new edges.
		stub.ReleaseRef()
		stub = nil
		t.finishStub = nil
	}
	if stub == nil {
		var err error
		stub, err = createTask(stubFn)
		if err != nil {
			t.mu.Unlock()
			return err
		}
		stub.stubTarget = t
		t.finishStub = stub
		t.deferrals++
		t.mu.Unlock()
		if err := stub.DependOn(pred); err != nil {
			return err
		}
		return stub.Launch()
	}
	t.mu.Unlock()
	// Reuse the stub: just add the new predecessor edge.
	return stub.DependOn(pred)
}

// groupCanceled reports whether any group the task joined is canceled.
func (t *Task) groupCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.group != nil && t.group.Canceled() {
		return true
	}
	for _, g := range t.extraGroups {
		if g.Canceled() {
			return true
		}
	}
	return false
}

func (t *Task) casState(from, to TaskState) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}

// predDone resolves one incoming edge. Called exactly once per edge on the
// predecessor's terminal transition (or from DependOn when the predecessor
// is already terminal).
func (t *Task) predDone(w *worker, pred *Task) {
	var inheritErr error
	switch pred.State() {
	case StateFailed:
		inheritErr = pred.outcome()
	case StateCanceled:
		inheritErr = newTaskError(KindTaskCanceled, "DependOn", "predecessor canceled", pred.outcome())
	}
	t.mu.Lock()
	if inheritErr != nil {
		t.inherited = append(t.inherited, inheritErr)
	}
	t.pendingPreds--
	ready := t.pendingPreds == 0 && t.State() == StateLaunched
	t.mu.Unlock()
	if ready {
		t.makeReady(w)
	}
}

// makeReady moves a Launched task to Ready and hands it to the scheduler.
func (t *Task) makeReady(w *worker) {
	if !t.casState(StateLaunched, StateReady) {
		return // canceled concurrently
	}
	t.rt.sched.enqueue(w, t, true)
}

// inheritedFailure folds predecessor failures into a single error, or nil
// when all predecessors completed (or the task opted into recovery).
func (t *Task) inheritedFailure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recover || len(t.inherited) == 0 {
		return nil
	}
	if len(t.inherited) == 1 {
		return t.inherited[0]
	}
	counts := make(map[ErrorKind]int, len(t.inherited))
	for _, e := range t.inherited {
		counts[errKindOf(e)]++
	}
	return &AggregateError{Op: "DependOn", First: t.inherited[0], Counts: counts}
}

// finish performs the terminal transition bookkeeping. The caller has
// already moved state to a terminal value exactly once; finish releases
// buffer holds, notifies successors once, decrements group counters, and
// drops the runtime reference. Completion is withheld while finish-after
// deferrals are outstanding.
func (t *Task) finish(w *worker, outcome TaskState, err error) {
	t.mu.Lock()
	if t.acquired != nil {
		t.acquired.Release()
		t.acquired = nil
	}
	t.err = err
	if t.deferrals > 0 {
		t.bodyDone = true
		t.pendingOutcome = outcome
		t.pendingErr = err
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.commitFinish(w, outcome, err)
}

// deferralDone retires one finish-after stub; the last one commits the
// withheld completion.
func (t *Task) deferralDone(w *worker, stubErr error) {
	t.mu.Lock()
	t.deferrals--
	commit := t.deferrals == 0 && t.bodyDone
	outcome := t.pendingOutcome
	err := t.pendingErr
	if stubErr != nil && err == nil {
		err = stubErr
		if outcome == StateCompleted {
			outcome = StateFailed
		}
	}
	t.mu.Unlock()
	if commit {
		// Re-pin the terminal state in case the stub failed.
		t.state.Store(int32(outcome))
		t.commitFinish(w, outcome, err)
	}
}

func (t *Task) commitFinish(w *worker, outcome TaskState, err error) {
	t.mu.Lock()
	if t.notified {
		t.mu.Unlock()
		return
	}
	t.notified = true
	t.err = err
	succs := t.succs
	t.succs = nil
	counted := t.counted
	t.counted = nil
	target := t.stubTarget
	stub := t.finishStub
	t.finishStub = nil
	t.mu.Unlock()

	if stub != nil {
		stub.ReleaseRef()
	}

	close(t.done)

	// Successors are notified exactly once, after the terminal state and the
	// exception slot are published.
	for _, s := range succs {
		s.predDone(w, t)
	}
	if target != nil {
		target.deferralDone(w, err)
	}
	var groupErr error
	if outcome == StateFailed || outcome == StateCanceled {
		groupErr = t.outcome()
	}
	// Retire exactly the groups counted at join time; a meet created since
	// then never saw this task's increment.
	for _, g := range counted {
		g.decrOutstanding(groupErr)
	}
	// Runtime reference taken at creation.
	t.refCount.release(t.destroy)
}

// errKindOf extracts the structured kind of an error, defaulting to the
// generic task kind.
func errKindOf(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	if a, ok := err.(*AggregateError); ok {
		return a.Kind()
	}
	return KindTaskGeneric
}
