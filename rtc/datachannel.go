package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/pomelo-net/webrtc-plugin/errors"
)

// DataChannel wraps one pion data channel, outgoing or incoming. The closed
// callback is guaranteed to fire exactly once, for local and remote closes
// alike; consumers hang reference drops off it.
type DataChannel struct {
	ctx *Context
	dc  *webrtc.DataChannel

	closedOnce sync.Once

	mu   sync.Mutex
	data any
}

func newDataChannel(ctx *Context, dc *webrtc.DataChannel) *DataChannel {
	d := &DataChannel{ctx: ctx, dc: dc}

	dc.OnOpen(func() {
		if cb := ctx.callbacks.DCOpen; cb != nil {
			cb(d)
		}
	})
	dc.OnClose(d.fireClosed)
	dc.OnError(func(err error) {
		if cb := ctx.callbacks.DCError; cb != nil {
			cb(d, err)
		}
	})
	dc.OnMessage(func(message webrtc.DataChannelMessage) {
		if cb := ctx.callbacks.DCMessage; cb != nil {
			buffer := ctx.PrepareBufferFrom(message.Data)
			cb(d, buffer)
			buffer.Unref()
		}
	})

	return d
}

// Label returns the channel label.
func (d *DataChannel) Label() string {
	return d.dc.Label()
}

// IsOpen reports whether the channel is open for traffic.
func (d *DataChannel) IsOpen() bool {
	return d.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// Send transmits one binary frame.
func (d *DataChannel) Send(payload []byte) error {
	return errors.Wrapf(d.dc.Send(payload), "failed to send on channel %q", d.dc.Label())
}

// SendBuffer transmits a buffer's payload. The caller keeps its reference.
func (d *DataChannel) SendBuffer(buffer *Buffer) error {
	return d.Send(buffer.Data())
}

func (d *DataChannel) fireClosed() {
	d.closedOnce.Do(func() {
		if cb := d.ctx.callbacks.DCClosed; cb != nil {
			cb(d)
		}
	})
}

// Close tears the channel down; the closed callback delivers the
// notification exactly once.
func (d *DataChannel) Close() {
	if err := d.dc.Close(); err != nil {
		d.ctx.log.Debugw("data channel close", "label", d.dc.Label(), "error", err)
	}
	d.fireClosed()
}

// Destroy releases the channel after close.
func (d *DataChannel) Destroy() {
	d.SetData(nil)
}

// SetData attaches consumer state to the channel.
func (d *DataChannel) SetData(data any) {
	d.mu.Lock()
	d.data = data
	d.mu.Unlock()
}

// Data returns the attached consumer state.
func (d *DataChannel) Data() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data
}
