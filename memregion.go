package rhea

import "unsafe"

// RegionKind identifies the backing store of a memory region.
type RegionKind int

const (
	// RegionNone is the placeholder for storage not yet pinned.
	RegionNone RegionKind = iota
	// RegionMain is an aligned host allocation.
	RegionMain
	// RegionION is an ION-heap allocation, possibly externally supplied.
	RegionION
	// RegionGLBuffer wraps a GL buffer object handle supplied by the caller.
	RegionGLBuffer
)

// String returns the region kind as a string.
func (k RegionKind) String() string {
	switch k {
	case RegionMain:
		return "main"
	case RegionION:
		return "ion"
	case RegionGLBuffer:
		return "gl-buffer"
	default:
		return "none"
	}
}

// MemRegion is host-side backing storage for a buffer arena. Regions created
// by the runtime are released on Close; externally supplied storage is never
// freed.
type MemRegion struct {
	kind      RegionKind
	data      []byte
	raw       []byte // full mapping for internally mapped regions
	fd        int
	handle    uint32
	size      int
	cacheable bool
	external  bool
}

// NewMainRegion allocates size bytes of host memory aligned to align
// (HostArenaAlignment when align is 0).
func NewMainRegion(size, align int) (*MemRegion, error) {
	if size <= 0 {
		return nil, NewInvalidArgError("NewMainRegion", "size must be positive")
	}
	if align == 0 {
		align = HostArenaAlignment
	}
	if align&(align-1) != 0 {
		return nil, NewInvalidArgError("NewMainRegion", "alignment must be a power of two")
	}
	data, raw, err := mapAligned(size, align)
	if err != nil {
		return nil, NewAllocationError("NewMainRegion", "host mapping failed", err)
	}
	return &MemRegion{kind: RegionMain, data: data, raw: raw, fd: -1, size: size}, nil
}

// WrapMainRegion adopts caller-supplied host storage. The region is external:
// Close leaves the storage alone.
func WrapMainRegion(data []byte) (*MemRegion, error) {
	if len(data) == 0 {
		return nil, NewInvalidArgError("WrapMainRegion", "storage must be non-empty")
	}
	return &MemRegion{kind: RegionMain, data: data, fd: -1, size: len(data), external: true}, nil
}

// NewIONRegion allocates size bytes from the ION heap where the platform
// supports it, falling back to an anonymous mapping elsewhere.
func NewIONRegion(size int, cacheable bool) (*MemRegion, error) {
	if size <= 0 {
		return nil, NewInvalidArgError("NewIONRegion", "size must be positive")
	}
	data, raw, fd, err := mapION(size, cacheable)
	if err != nil {
		return nil, NewAllocationError("NewIONRegion", "ion mapping failed", err)
	}
	return &MemRegion{kind: RegionION, data: data, raw: raw, fd: fd, size: size, cacheable: cacheable}, nil
}

// WrapIONRegion adopts an externally allocated ION mapping without its file
// descriptor.
func WrapIONRegion(data []byte, cacheable bool) (*MemRegion, error) {
	return WrapIONRegionFD(data, -1, cacheable)
}

// WrapIONRegionFD adopts an externally allocated ION mapping together with
// its heap file descriptor. External regions are never freed by the runtime.
func WrapIONRegionFD(data []byte, fd int, cacheable bool) (*MemRegion, error) {
	if len(data) == 0 {
		return nil, NewInvalidArgError("WrapIONRegion", "storage must be non-empty")
	}
	return &MemRegion{kind: RegionION, data: data, fd: fd, size: len(data), cacheable: cacheable, external: true}, nil
}

// WrapGLBuffer wraps a GL buffer object. The handle is opaque to the core;
// the executor owning the GPU class interprets it. Size must be supplied by
// the caller because the core cannot query the GL object.
func WrapGLBuffer(handle uint32, size int) (*MemRegion, error) {
	if size <= 0 {
		return nil, NewInvalidArgError("WrapGLBuffer", "size must be positive")
	}
	return &MemRegion{kind: RegionGLBuffer, handle: handle, fd: -1, size: size, external: true}, nil
}

// Kind returns the region kind.
func (r *MemRegion) Kind() RegionKind { return r.kind }

// Size returns the region size in bytes.
func (r *MemRegion) Size() int { return r.size }

// Bytes returns the host-visible storage, or nil for regions without a host
// mapping (gl-buffer).
func (r *MemRegion) Bytes() []byte { return r.data }

// FD returns the heap file descriptor of an ION region, or -1.
func (r *MemRegion) FD() int { return r.fd }

// Cacheable reports the ION cacheable flag.
func (r *MemRegion) Cacheable() bool { return r.cacheable }

// GLHandle returns the wrapped GL buffer object handle.
func (r *MemRegion) GLHandle() uint32 { return r.handle }

// Close releases internally allocated storage. Idempotent; external regions
// are left untouched.
func (r *MemRegion) Close() error {
	if r.external || r.raw == nil {
		r.data = nil
		return nil
	}
	raw := r.raw
	r.raw = nil
	r.data = nil
	return unmapRegion(raw)
}

func roundUp(n, to int) int { return (n + to - 1) &^ (to - 1) }

// alignOffset is the byte offset into b at which align is satisfied.
func alignOffset(b []byte, align int) int {
	return int(-uintptr(unsafe.Pointer(&b[0])) & uintptr(align-1))
}
