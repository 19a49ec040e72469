package bridge

import (
	"github.com/pomelo-net/webrtc-plugin/errors"
	"github.com/pomelo-net/webrtc-plugin/host"
	"github.com/pomelo-net/webrtc-plugin/pool"
	"github.com/pomelo-net/webrtc-plugin/rtc"
)

var (
	errorSystemChannelMode    = errors.New("bridge: system channel mode is fixed")
	errorChannelReplaceFailed = errors.New("bridge: channel replacement failed")
)

// systemChannelIndex is the sentinel slot of the reserved system channel.
const systemChannelIndex = -1

const (
	channelFlagActive uint32 = 1 << iota
	channelFlagDCActive
	channelFlagDCReceiveEnabled
)

// Channel is one delivery-tier byte stream of a session: the outgoing data
// channel this side created and, once the peer opened its counterpart, the
// incoming one. All fields are loop-only.
type Channel struct {
	ctx   *Context
	ref   pool.Reference
	flags uint32

	session *Session
	index   int
	mode    host.ChannelMode

	outgoingDC *rtc.DataChannel
	incomingDC *rtc.DataChannel
}

func (c *Channel) isActive() bool {
	return c.flags&channelFlagActive != 0
}

// channelAcquire creates a channel and its outgoing data channel. Loop-only.
func (ctx *Context) channelAcquire(session *Session, index int, mode host.ChannelMode) *Channel {
	c := ctx.channelPool.Acquire()
	if c == nil {
		ctx.log.Errorw("channel pool exhausted")
		return nil
	}

	c.ref.Init(c.onFinalize)

	c.session = session
	session.ref.Ref()

	c.index = index
	c.mode = mode
	c.flags = channelFlagActive

	if err := c.dcInit(); err != nil {
		ctx.log.Errorw("data channel create failed",
			"session", session.traceID, "channel", index, "error", err)
		c.close()
		return nil
	}
	return c
}

// close tears the channel down. Idempotent.
func (c *Channel) close() {
	if !c.isActive() {
		return
	}
	c.flags &^= channelFlagActive

	c.dcClose()

	c.ref.Unref()
}

// enableReceiving opens the inbound gate; frames arriving before this are
// dropped.
func (c *Channel) enableReceiving() {
	c.flags |= channelFlagDCReceiveEnabled
}

// send transmits raw bytes on the outgoing data channel.
func (c *Channel) send(data []byte) {
	if len(data) == 0 {
		return
	}
	if err := c.outgoingDC.Send(data); err != nil {
		c.ctx.log.Debugw("channel send failed",
			"session", c.session.traceID, "channel", c.index, "error", err)
	}
}

// sendBuffer transmits a staged buffer on the outgoing data channel.
func (c *Channel) sendBuffer(buffer *rtc.Buffer) {
	if err := c.outgoingDC.SendBuffer(buffer); err != nil {
		c.ctx.log.Debugw("channel send failed",
			"session", c.session.traceID, "channel", c.index, "error", err)
	}
}

// setMode changes the delivery tier. A data channel's reliability is fixed
// at creation, so the old channel is torn down and a fresh one takes its
// slot. If the session is already past its connected gate the replacement
// has receiving enabled at once; otherwise the session enables it on
// connect, as for every other channel.
func (c *Channel) setMode(mode host.ChannelMode) error {
	if mode == c.mode {
		return nil
	}
	if c.index == systemChannelIndex {
		return errorSystemChannelMode
	}

	session := c.session
	index := c.index

	c.close()

	replacement := c.ctx.channelAcquire(session, index, mode)
	if replacement == nil {
		return errorChannelReplaceFailed
	}
	session.channels[index] = replacement

	// Past the gate, the replacement's later open changes nothing, so its
	// receiving is enabled here.
	if session.flags&sessionFlagsConnected == sessionFlagsConnected {
		replacement.enableReceiving()
	}
	return nil
}

// onFinalize runs when the last reference drops.
func (c *Channel) onFinalize() {
	ctx := c.ctx
	if ctx.submit(func() { ctx.channelRelease(c) }) == nil {
		ctx.channelRelease(c)
	}
}

// channelRelease returns a finalized channel to its pool.
func (ctx *Context) channelRelease(c *Channel) {
	session := c.session

	c.dcCleanup()

	c.session = nil
	c.flags = 0
	c.index = 0
	c.mode = host.ModeUnreliable

	ctx.channelPool.Release(c)

	session.ref.Unref()
}
