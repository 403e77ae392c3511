package zel

// rangeFits reports whether the region [offset, offset+length) lies inside
// limit bytes. Written so the check cannot wrap when offset approaches the
// address-space maximum.
func rangeFits(offset, length, limit uint64) bool {
	if length > limit {
		return false
	}

	return offset <= limit-length
}

// readAt copies len(dst) bytes from absolute offset into dst. Memory-backed
// handles copy from the input slice; stream-backed handles delegate to the
// io.ReaderAt, where any short read reports ErrIO.
func (d *Decoder) readAt(offset uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}

	if !rangeFits(offset, uint64(len(dst)), d.size) {
		return ErrCorruptData
	}

	if d.data != nil {
		copy(dst, d.data[offset:])

		return nil
	}

	if d.src == nil {
		return ErrInternal
	}

	// A full read is a success even when the reader also reports io.EOF at
	// the end of the underlying device.
	n, _ := d.src.ReadAt(dst, int64(offset))
	if n != len(dst) {
		return ErrIO
	}

	return nil
}
