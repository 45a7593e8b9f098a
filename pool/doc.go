// Package pool provides the object allocators feeding task, group and
// work-stealing-tree creation: a fixed-capacity linear pool addressed by
// index, a size-class free-list pool with embedded headers for uniform
// deallocation, and a bump arena of slabs supporting bulk reset. Slab slots
// are claimed from a lock-free 32-bit bitmap.
//
// All pools hand out typed storage so the garbage collector scans pooled
// objects normally; recycling only shortcuts allocation, it never hides
// pointers from the collector.
package pool
