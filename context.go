package rhea

import "runtime"

// TaskContext is handed to every CPU task body. It carries the executing
// worker, cancellation check points, task-local storage and cooperative
// waiting primitives.
type TaskContext struct {
	task *Task
	w    *worker
	rt   *runtimeState
}

// Task returns the executing task.
func (tc *TaskContext) Task() *Task { return tc.task }

// WorkerID returns the executing worker's id, or -1 on a transient or
// foreign context.
func (tc *TaskContext) WorkerID() int {
	if tc.w == nil {
		return -1
	}
	return tc.w.id
}

// Canceled reports whether cancellation of the task or one of its groups
// has been requested.
func (tc *TaskContext) Canceled() bool {
	return tc.task.cancelReq.Load() || tc.task.groupCanceled()
}

// AbortOnCancel is the cancellation check point for running bodies: it
// returns ErrTaskCanceled when cancellation was requested, and the body
// should return that error unchanged.
func (tc *TaskContext) AbortOnCancel() error {
	if tc.Canceled() {
		return ErrTaskCanceled
	}
	return nil
}

// Yield gives up the worker briefly, running one pending task if available.
// Long-running bodies not marked blocking should yield at safe points.
func (tc *TaskContext) Yield() {
	if tc.w != nil && tc.w.inline == 0 {
		if t := tc.w.findWork(); t != nil {
			tc.w.inline++
			tc.w.sched.execute(tc.w, t)
			tc.w.inline--
			return
		}
	}
	runtime.Gosched()
}

// InheritedErrors exposes predecessor failures to tasks that opted into
// recovery with WithRecovery.
func (tc *TaskContext) InheritedErrors() []error {
	tc.task.mu.Lock()
	defer tc.task.mu.Unlock()
	out := make([]error, len(tc.task.inherited))
	copy(out, tc.task.inherited)
	return out
}

// SetLocal stores a value in task-local storage.
func (tc *TaskContext) SetLocal(k *StorageKey, v any) {
	tc.task.mu.Lock()
	if tc.task.local == nil {
		tc.task.local = newLocalStore()
	}
	ls := tc.task.local
	tc.task.mu.Unlock()
	ls.set(k, v)
}

// Local reads task-local storage.
func (tc *TaskContext) Local(k *StorageKey) (any, bool) {
	tc.task.mu.Lock()
	ls := tc.task.local
	tc.task.mu.Unlock()
	if ls == nil {
		return nil, false
	}
	return ls.get(k)
}

// SetWorkerLocal stores a value in the executing worker's storage.
func (tc *TaskContext) SetWorkerLocal(k *StorageKey, v any) {
	if tc.w != nil {
		tc.w.local.set(k, v)
	}
}

// WorkerLocal reads the executing worker's storage.
func (tc *TaskContext) WorkerLocal(k *StorageKey) (any, bool) {
	if tc.w == nil {
		return nil, false
	}
	return tc.w.local.get(k)
}

// Launch launches a task from inside a body, preferring the executing
// worker's own deque.
func (tc *TaskContext) Launch(t *Task) error {
	return tc.LaunchInto(t, nil)
}

// LaunchInto joins a task to a group and launches it from inside a body.
func (tc *TaskContext) LaunchInto(t *Task, g *Group) error {
	if g != nil {
		if err := t.JoinGroup(g); err != nil {
			return err
		}
	}
	if !t.casState(StateUnlaunched, StateLaunched) {
		return NewInvalidArgError("Launch", "task already launched")
	}
	if t.cancelReq.Load() || t.groupCanceled() {
		t.tryFinishCanceled(tc.w)
		return nil
	}
	t.mu.Lock()
	ready := t.pendingPreds == 0
	t.mu.Unlock()
	if ready && t.casState(StateLaunched, StateReady) {
		tc.rt.sched.enqueue(tc.w, t, true)
	}
	return nil
}

// WaitFor blocks until t is terminal, draining other work while waiting so
// the pool keeps making progress.
func (tc *TaskContext) WaitFor(t *Task) error {
	if tc.w != nil {
		tc.w.helpUntil(t.done)
	}
	return t.WaitFor()
}

// WaitForGroup blocks until g has no outstanding tasks, helping like WaitFor.
func (tc *TaskContext) WaitForGroup(g *Group) error {
	if tc.w != nil {
		g.mu.Lock()
		ch := g.idle
		busy := g.outstanding > 0
		g.mu.Unlock()
		if busy {
			tc.w.helpUntil(ch)
		}
	}
	return g.WaitFor()
}
