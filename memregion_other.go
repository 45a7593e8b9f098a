//go:build !linux

package rhea

// mapAligned allocates heap storage padded so the returned slice start
// satisfies align.
func mapAligned(size, align int) (data, raw []byte, err error) {
	raw = make([]byte, size+align)
	off := alignOffset(raw, align)
	return raw[off : off+size], raw, nil
}

func mapION(size int, cacheable bool) (data, raw []byte, fd int, err error) {
	data, raw, err = mapAligned(size, HostArenaAlignment)
	return data, raw, -1, err
}

func unmapRegion(raw []byte) error { return nil }
