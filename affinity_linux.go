//go:build linux

package rhea

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// clusterCPUSet builds the CPU set of one cluster. Performance cores are
// assumed to occupy the low core ids, matching the worker split.
func clusterCPUSet(cores AffinityCores) unix.CPUSet {
	var set unix.CPUSet
	dev := HostDevice()
	switch cores {
	case CoresBig:
		for i := 0; i < dev.BigCores; i++ {
			set.Set(i)
		}
	case CoresLittle:
		for i := dev.BigCores; i < dev.BigCores+dev.LittleCores; i++ {
			set.Set(i)
		}
	default:
		for i := 0; i < runtime.NumCPU(); i++ {
			set.Set(i)
		}
	}
	if set.Count() == 0 {
		for i := 0; i < runtime.NumCPU(); i++ {
			set.Set(i)
		}
	}
	return set
}

// applyThreadAffinity pins the calling OS thread per the settings and
// returns a restore closure.
func applyThreadAffinity(s AffinitySettings) (func(), error) {
	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		return nil, &Error{Kind: KindTaskGeneric, Op: "ExecuteOn", Message: "sched_getaffinity failed", Err: err}
	}
	set := clusterCPUSet(s.Cores)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return nil, &Error{Kind: KindTaskGeneric, Op: "ExecuteOn", Message: "sched_setaffinity failed", Err: err}
	}
	return func() {
		_ = unix.SchedSetaffinity(0, &prev)
	}, nil
}

// pinToCluster binds a worker's OS thread to its cluster's cores.
// Best-effort: scheduling hints survive a failed pin.
func pinToCluster(cluster DeviceClass, workerID int) {
	cores := CoresBig
	if cluster == CPULittle {
		cores = CoresLittle
	}
	set := clusterCPUSet(cores)
	_ = unix.SchedSetaffinity(0, &set)
}
