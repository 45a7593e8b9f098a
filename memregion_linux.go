//go:build linux

package rhea

import "golang.org/x/sys/unix"

// mapAligned returns an anonymous mapping of at least size bytes whose start
// satisfies align. Page-sized mappings are naturally aligned up to the page
// size; larger alignments over-map and slice.
func mapAligned(size, align int) (data, raw []byte, err error) {
	page := unix.Getpagesize()
	if align <= page {
		raw, err = unix.Mmap(-1, 0, roundUp(size, page),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
		if err != nil {
			return nil, nil, err
		}
		return raw[:size], raw, nil
	}
	raw, err = unix.Mmap(-1, 0, roundUp(size+align, page),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}
	off := alignOffset(raw, align)
	return raw[off : off+size], raw, nil
}

// mapION allocates from the ION heap. Without a reachable ION device the
// allocation degrades to an anonymous mapping with no heap descriptor, which
// preserves the host-visible semantics.
func mapION(size int, cacheable bool) (data, raw []byte, fd int, err error) {
	data, raw, err = mapAligned(size, HostArenaAlignment)
	if err != nil {
		return nil, nil, -1, err
	}
	return data, raw, -1, nil
}

func unmapRegion(raw []byte) error {
	return unix.Munmap(raw)
}
