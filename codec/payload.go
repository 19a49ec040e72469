// Package codec implements the wire codecs of the bridge: a bounded payload
// cursor over a byte slice and the packed variable-width unsigned integer
// encoding used on the system channel.
//
// All integers are little-endian on the wire regardless of host byte order.
package codec

import "github.com/pomelo-net/webrtc-plugin/errors"

var (
	// ErrPayloadOverflow is returned when a read or write would pass the end
	// of the underlying buffer.
	ErrPayloadOverflow = errors.New("codec: payload overflow")

	// ErrPackedWidth is returned for packed integer widths outside [1, 8].
	ErrPackedWidth = errors.New("codec: packed width out of range")
)

// Payload is a bounded cursor over a byte slice. Reads and writes advance the
// position and fail with ErrPayloadOverflow instead of growing the buffer.
type Payload struct {
	data     []byte
	position int
}

// NewPayload wraps buf. The capacity of the payload is len(buf).
func NewPayload(buf []byte) *Payload {
	return &Payload{data: buf}
}

// Position returns the current cursor position.
func (p *Payload) Position() int { return p.position }

// Remaining returns the number of bytes left before the capacity.
func (p *Payload) Remaining() int { return len(p.data) - p.position }

// Bytes returns the written prefix of the underlying buffer.
func (p *Payload) Bytes() []byte { return p.data[:p.position] }

// ReadUint8 reads one byte.
func (p *Payload) ReadUint8() (uint8, error) {
	if p.position >= len(p.data) {
		return 0, ErrPayloadOverflow
	}
	b := p.data[p.position]
	p.position++
	return b, nil
}

// WriteUint8 writes one byte.
func (p *Payload) WriteUint8(b uint8) error {
	if p.position >= len(p.data) {
		return ErrPayloadOverflow
	}
	p.data[p.position] = b
	p.position++
	return nil
}

// ReadBytes reads n bytes into a fresh slice.
func (p *Payload) ReadBytes(n int) ([]byte, error) {
	if n < 0 || p.Remaining() < n {
		return nil, ErrPayloadOverflow
	}
	out := make([]byte, n)
	copy(out, p.data[p.position:p.position+n])
	p.position += n
	return out, nil
}

// WriteBytes writes the whole of b.
func (p *Payload) WriteBytes(b []byte) error {
	if p.Remaining() < len(b) {
		return ErrPayloadOverflow
	}
	copy(p.data[p.position:], b)
	p.position += len(b)
	return nil
}
