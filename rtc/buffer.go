package rtc

import "sync/atomic"

// Buffer is a pooled, reference-counted byte buffer. Producers hand a buffer
// to a callback with one reference; consumers that need it beyond the
// callback take their own with Ref and drop it with Unref. The final Unref
// returns the buffer to the context pool.
type Buffer struct {
	ctx  *Context
	data []byte
	size int
	refs atomic.Int32
}

// PrepareBuffer acquires a buffer with at least capacity writable bytes and
// one reference. The returned slice is the writable region, len == capacity.
func (c *Context) PrepareBuffer(capacity int) (*Buffer, []byte) {
	b := c.bufferPool.Get().(*Buffer)
	if cap(b.data) < capacity {
		b.data = make([]byte, capacity)
	}
	b.data = b.data[:capacity]
	b.size = capacity
	b.refs.Store(1)
	return b, b.data
}

// PrepareBufferFrom copies payload into a pooled buffer with one reference.
func (c *Context) PrepareBufferFrom(payload []byte) *Buffer {
	b, data := c.PrepareBuffer(len(payload))
	copy(data, payload)
	return b
}

// Data returns the buffer payload.
func (b *Buffer) Data() []byte { return b.data[:b.size] }

// Size returns the payload length.
func (b *Buffer) Size() int { return b.size }

// Ref takes an additional reference.
func (b *Buffer) Ref() {
	b.refs.Add(1)
}

// Unref drops one reference, recycling the buffer at zero.
func (b *Buffer) Unref() {
	if b.refs.Add(-1) == 0 {
		b.size = 0
		b.ctx.bufferPool.Put(b)
	}
}
