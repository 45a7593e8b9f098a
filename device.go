package rhea

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/pbnjay/memory"
)

// DeviceClass is a bitmask selecting one or more executor classes.
// CPU is the union of the big and little clusters.
type DeviceClass uint32

const (
	// CPUBig selects the performance cluster of an asymmetric CPU.
	CPUBig DeviceClass = 0x1
	// CPULittle selects the efficiency cluster of an asymmetric CPU.
	CPULittle DeviceClass = 0x2
	// CPU selects both CPU clusters.
	CPU DeviceClass = CPUBig | CPULittle
	// GPU selects the integrated GPU.
	GPU DeviceClass = 0x4
	// DSP selects the programmable DSP.
	DSP DeviceClass = 0x8
	// AllDevices selects every executor class.
	AllDevices DeviceClass = 0xF
)

// String returns the device class as a string.
func (c DeviceClass) String() string {
	if c == AllDevices {
		return "all"
	}
	var parts []string
	if c&CPU == CPU {
		parts = append(parts, "cpu")
	} else {
		if c&CPUBig != 0 {
			parts = append(parts, "cpu-big")
		}
		if c&CPULittle != 0 {
			parts = append(parts, "cpu-little")
		}
	}
	if c&GPU != 0 {
		parts = append(parts, "gpu")
	}
	if c&DSP != 0 {
		parts = append(parts, "dsp")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// IsCPU reports whether the class selects only CPU clusters.
func (c DeviceClass) IsCPU() bool {
	return c != 0 && c&^CPU == 0
}

// single reports whether exactly one class bit is set.
func (c DeviceClass) single() bool {
	return c != 0 && c&(c-1) == 0
}

// Device describes the host the runtime executes on. There is one Device per
// process; GPU and DSP capability is reported from the executor registry.
type Device struct {
	Name        string // Human-readable device name
	TotalMem    uint64 // Total physical memory in bytes
	NumCores    int    // Number of CPU execution contexts
	BigCores    int    // Execution contexts attributed to the performance cluster
	LittleCores int    // Execution contexts attributed to the efficiency cluster
}

// DefaultDevice probes the host. The big/little split defaults to an even
// halving of the reported execution contexts and may be overridden through
// the environment (EnvBigWorkers, EnvLittleWorkers).
func DefaultDevice() *Device {
	n := runtime.NumCPU()
	big := envInt(EnvBigWorkers, (n+1)/2)
	little := envInt(EnvLittleWorkers, n-(n+1)/2)
	if little < 0 {
		little = 0
	}
	return &Device{
		Name:        fmt.Sprintf("host (%d contexts)", n),
		TotalMem:    memory.TotalMemory(),
		NumCores:    n,
		BigCores:    big,
		LittleCores: little,
	}
}

// ArenaHandle is an opaque reference to device-resident storage returned by
// an Executor. The core never inspects it.
type ArenaHandle any

// DeviceKernel is an opaque, pre-compiled kernel object understood by the
// executor of its class. Kernel compilation is outside the core; the
// scheduler only routes tasks carrying a DeviceKernel to the matching
// device queue.
type DeviceKernel interface {
	KernelClass() DeviceClass
}

// Executor is the capability surface a device back-end exposes to the core.
// Implementations must be safe for concurrent use; the runtime serializes
// nothing beyond the per-buffer arena protocol.
type Executor interface {
	// Class identifies the single device class the executor serves.
	Class() DeviceClass

	// Launch runs a kernel synchronously and returns its outcome.
	Launch(k DeviceKernel, args []any) error

	// AllocArena allocates device-resident storage of the given byte size.
	AllocArena(size int) (ArenaHandle, error)

	// FreeArena releases device-resident storage.
	FreeArena(h ArenaHandle) error

	// CopyIn fills device storage from host memory.
	CopyIn(dst ArenaHandle, src []byte) error

	// CopyOut drains device storage into host memory.
	CopyOut(dst []byte, src ArenaHandle) error
}

// executorRegistry maps non-CPU device classes to their back-ends.
type executorRegistry struct {
	mu      sync.RWMutex
	byClass map[DeviceClass]Executor
}

func newExecutorRegistry() *executorRegistry {
	return &executorRegistry{byClass: make(map[DeviceClass]Executor)}
}

func (r *executorRegistry) register(ex Executor) error {
	c := ex.Class()
	if !c.single() || c.IsCPU() {
		return NewInvalidArgError("RegisterExecutor", "executor class must be a single non-CPU device bit")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byClass[c]; dup {
		return NewInvalidArgError("RegisterExecutor", "executor already registered for "+c.String())
	}
	r.byClass[c] = ex
	return nil
}

func (r *executorRegistry) lookup(c DeviceClass) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.byClass[c]
	return ex, ok
}

func (r *executorRegistry) classes() []DeviceClass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeviceClass, 0, len(r.byClass))
	for c := range r.byClass {
		out = append(out, c)
	}
	return out
}

// RegisterExecutor installs a device back-end for its class. At most one
// executor per class may be registered. Registration after Init attaches a
// dispatcher to the running scheduler.
func RegisterExecutor(ex Executor) error {
	rt := currentRuntime()
	if rt == nil {
		return pendingExecutors.register(ex)
	}
	return rt.registerExecutor(ex)
}

// pendingExecutors collects registrations made before Init.
var pendingExecutors = newExecutorRegistry()
