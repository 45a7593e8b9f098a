// Package rhea configuration constants and environment overrides.
package rhea

import (
	"os"
	"strconv"
)

// Scheduler parameters
const (
	// Initial capacity of a per-worker deque (must be a power of two)
	DefaultDequeCapacity = 64

	// Number of random victims probed before falling back to the foreign queue
	StealAttempts = 4

	// Spin iterations before a worker parks on its semaphore
	ParkSpinThreshold = 64
)

// Work-stealing tree parameters
const (
	// Default block size an owner claims per progress advance
	DefaultBlockSize = 256

	// Smallest range worth splitting when a thief lands on a busy node
	MinSplitRange = 2
)

// Allocator parameters
const (
	// Entries per free-list slab
	PoolSlabSize = 64

	// Maximum slabs per pool, claimed from a 32-bit bitmap
	PoolMaxSlabs = 32

	// Capacity of the linear pool backing lattice leaves
	MaxGroupLeaves = 1024
)

// Buffer parameters
const (
	// Default alignment of host-resident arenas in bytes
	HostArenaAlignment = 4096
)

// Environment variable names honored once, before Init.
const (
	EnvNumWorkers    = "RHEA_NUM_WORKERS"
	EnvBigWorkers    = "RHEA_BIG_WORKERS"
	EnvLittleWorkers = "RHEA_LITTLE_WORKERS"
	EnvAffinity      = "RHEA_AFFINITY"
)

// envInt reads a positive integer override from the environment.
// Returns fallback when unset or malformed.
func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
