package rhea

import "sync"

// StorageKey names one slot of keyed local storage. A key may carry a
// destructor which runs when the owning object (task, worker or scheduler)
// is destroyed with a value still present.
type StorageKey struct {
	name string
	dtor func(value any)
}

// NewStorageKey creates a storage key. The destructor may be nil.
func NewStorageKey(name string, dtor func(value any)) *StorageKey {
	return &StorageKey{name: name, dtor: dtor}
}

// String returns the key name.
func (k *StorageKey) String() string { return k.name }

// localStore is the map behind task-local, worker-local and scheduler-local
// storage.
type localStore struct {
	mu    sync.Mutex
	slots map[*StorageKey]any
}

func newLocalStore() *localStore {
	return &localStore{}
}

func (ls *localStore) set(k *StorageKey, v any) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.slots == nil {
		ls.slots = make(map[*StorageKey]any)
	}
	ls.slots[k] = v
}

func (ls *localStore) get(k *StorageKey) (any, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	v, ok := ls.slots[k]
	return v, ok
}

func (ls *localStore) delete(k *StorageKey) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.slots, k)
}

// runDestructors invokes registered destructors for all present values and
// clears the store. Each destructor runs at most once per value.
func (ls *localStore) runDestructors() {
	ls.mu.Lock()
	slots := ls.slots
	ls.slots = nil
	ls.mu.Unlock()
	for k, v := range slots {
		if k.dtor != nil {
			k.dtor(v)
		}
	}
}

// SetSchedulerLocal stores a value in scheduler-wide keyed storage.
func SetSchedulerLocal(k *StorageKey, v any) error {
	rt := currentRuntime()
	if rt == nil {
		return ErrNotRunning
	}
	rt.sched.local.set(k, v)
	return nil
}

// SchedulerLocal reads scheduler-wide keyed storage.
func SchedulerLocal(k *StorageKey) (any, bool) {
	rt := currentRuntime()
	if rt == nil {
		return nil, false
	}
	return rt.sched.local.get(k)
}
