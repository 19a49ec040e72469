package bridge

import (
	"github.com/pomelo-net/webrtc-plugin/host"
	"github.com/pomelo-net/webrtc-plugin/rtc"
)

// Host plane of the channel: the receive path into the host's message
// abstraction and its completion hop.

// recvCommand carries one inbound frame through the host executor and back.
type recvCommand struct {
	message       *rtc.Buffer
	nativeSession host.NativeSession
	channel       *Channel
}

// receive hands an inbound application frame to the host executor. The
// channel and the buffer are both held across the hop; the completion task
// on the loop releases the bookkeeping.
func (c *Channel) receive(message *rtc.Buffer) {
	ctx := c.ctx

	if !c.ref.Ref() {
		return
	}
	message.Ref()

	command := ctx.recvCommandPool.Acquire()
	if command == nil {
		message.Unref()
		c.ref.Unref()
		return
	}
	command.message = message
	command.nativeSession = c.session.nativeSession
	command.channel = c

	err := ctx.hostPlugin.ExecutorSubmit(func() {
		ctx.hostChannelReceive(command)
	})
	if err != nil {
		message.Unref()
		c.ref.Unref()
		ctx.recvCommandPool.Release(command)
		return
	}
	// => receiveComplete
}

// hostChannelReceive runs on the host executor: copy the frame into a host
// message, deliver it, then hop the completion back to the loop.
func (ctx *Context) hostChannelReceive(command *recvCommand) {
	hostPlugin := ctx.hostPlugin

	message := hostPlugin.MessageAcquire()
	if message != nil {
		if err := hostPlugin.MessageWrite(message, command.message.Data()); err == nil {
			hostPlugin.SessionReceive(command.nativeSession, command.channel.index, message)
		} else {
			ctx.log.Debugw("host message write failed", "error", err)
		}
	}

	if ctx.submit(func() { ctx.receiveComplete(command) }) == nil {
		ctx.receiveComplete(command)
	}
}

// receiveComplete releases the per-frame bookkeeping on the loop.
func (ctx *Context) receiveComplete(command *recvCommand) {
	command.message.Unref()
	command.channel.ref.Unref()
	ctx.recvCommandPool.Release(command)
}
