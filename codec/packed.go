package codec

// PackedUint64Bytes returns the minimum number of bytes (1..8) needed to
// encode value: the position of its highest set byte.
func PackedUint64Bytes(value uint64) int {
	if value&0xFFFFFFFF00000000 != 0 {
		if value&0xFFFF000000000000 != 0 {
			if value&0xFF00000000000000 != 0 {
				return 8
			}
			return 7
		}
		if value&0x0000FF0000000000 != 0 {
			return 6
		}
		return 5
	}
	if value&0xFFFF0000 != 0 {
		if value&0xFF000000 != 0 {
			return 4
		}
		return 3
	}
	if value&0xFF00 != 0 {
		return 2
	}
	return 1
}

// ReadPackedUint64 reads a little-endian integer of the given width from the
// payload. Width must be in [1, 8].
func (p *Payload) ReadPackedUint64(nbytes int) (uint64, error) {
	if nbytes < 1 || nbytes > 8 {
		return 0, ErrPackedWidth
	}

	var value uint64
	for i := 0; i < nbytes; i++ {
		b, err := p.ReadUint8()
		if err != nil {
			return 0, err
		}
		value |= uint64(b) << (i * 8)
	}
	return value, nil
}

// WritePackedUint64 writes value as a little-endian integer of the given
// width. Bits above the width are discarded; callers size the width with
// PackedUint64Bytes when they need a lossless round-trip.
func (p *Payload) WritePackedUint64(nbytes int, value uint64) error {
	if nbytes < 1 || nbytes > 8 {
		return ErrPackedWidth
	}

	for i := 0; i < nbytes; i++ {
		if err := p.WriteUint8(uint8(value & 0xFF)); err != nil {
			return err
		}
		value >>= 8
	}
	return nil
}
