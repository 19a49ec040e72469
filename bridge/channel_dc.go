package bridge

import (
	"strconv"
	"strings"

	"github.com/pomelo-net/webrtc-plugin/host"
	"github.com/pomelo-net/webrtc-plugin/rtc"
)

// Data-channel plane of the channel: label conventions, the outgoing/
// incoming pair and the inbound frame path.

const (
	serverChannelPrefix = "server-channel-"
	clientChannelPrefix = "client-channel-"
	systemChannelLabel  = "system"
)

// parseClientChannelLabel maps an inbound data-channel label to a channel
// slot: "client-channel-<index>" pairs an application channel, "system"
// pairs the system channel. Anything else is invalid and closes the session.
func parseClientChannelLabel(label string) (index int, valid bool) {
	if label == systemChannelLabel {
		return systemChannelIndex, true
	}

	rest, ok := strings.CutPrefix(label, clientChannelPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	index, err := strconv.Atoi(rest)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// outgoingLabel names this side's data channel for one slot.
func outgoingLabel(index int) string {
	if index == systemChannelIndex {
		return systemChannelLabel
	}
	return serverChannelPrefix + strconv.Itoa(index)
}

// reliabilityFor maps a delivery tier onto data-channel options.
func reliabilityFor(mode host.ChannelMode) rtc.DataChannelReliability {
	switch mode {
	case host.ModeSequenced:
		return rtc.DataChannelReliability{Unreliable: true, Unordered: false}
	case host.ModeReliable:
		return rtc.DataChannelReliability{Unreliable: false, Unordered: false}
	default: // unreliable
		return rtc.DataChannelReliability{Unreliable: true, Unordered: true}
	}
}

// dcInit creates the outgoing data channel. The channel holds itself alive
// until the data channel's closed notification has been processed.
func (c *Channel) dcInit() error {
	dc, err := c.session.pc.CreateDataChannel(
		outgoingLabel(c.index), reliabilityFor(c.mode), c)
	if err != nil {
		return err
	}

	c.outgoingDC = dc
	c.flags |= channelFlagDCActive

	c.ref.Ref()
	return nil
}

func (c *Channel) dcCleanup() {
	if c.outgoingDC != nil {
		c.outgoingDC.Destroy()
		c.outgoingDC = nil
	}
	if c.incomingDC != nil {
		c.incomingDC.Destroy()
		c.incomingDC = nil
	}
}

func (c *Channel) dcClose() {
	if c.flags&channelFlagDCActive == 0 {
		return
	}
	c.flags &^= channelFlagDCActive

	c.outgoingDC.Close()
	if c.incomingDC != nil {
		c.incomingDC.Close()
	}
}

// setIncomingDataChannel pairs the peer's side of this stream. A second
// incoming channel for the same slot is ignored.
func (c *Channel) setIncomingDataChannel(dc *rtc.DataChannel) {
	if c.incomingDC != nil {
		return
	}
	dc.SetData(c)
	c.incomingDC = dc
}

/* -------------------------- provider callbacks -------------------------- */

// dcOnOpen fires on a pion goroutine when a data channel opens. Only this
// side's outgoing channels count toward the session gate.
func (ctx *Context) dcOnOpen(dc *rtc.DataChannel) {
	ctx.submit(func() {
		c, ok := dc.Data().(*Channel)
		if !ok {
			return
		}
		if dc == c.outgoingDC {
			c.session.onChannelOpened(c)
		}
	})
}

// dcOnClosed fires on a pion goroutine when a data channel closes.
func (ctx *Context) dcOnClosed(dc *rtc.DataChannel) {
	ctx.submit(func() {
		c, ok := dc.Data().(*Channel)
		if !ok {
			return
		}
		c.session.removeChannel(c)
		c.ref.Unref() // the data channel no longer holds the channel
	})
}

// dcOnError fires on a pion goroutine; the channel is torn down.
func (ctx *Context) dcOnError(dc *rtc.DataChannel, err error) {
	ctx.log.Debugw("data channel error", "label", dc.Label(), "error", err)
	ctx.submit(func() {
		c, ok := dc.Data().(*Channel)
		if !ok {
			return
		}
		c.close()
	})
}

// dcOnMessage fires on a pion goroutine for every inbound frame. The buffer
// is ref-bumped across the loop hop; the receive timestamp is taken on the
// loop, consistent with every other RTT timestamp.
func (ctx *Context) dcOnMessage(dc *rtc.DataChannel, message *rtc.Buffer) {
	message.Ref()
	submitted := ctx.submit(func() {
		defer message.Unref()

		recvTime := nanotime()
		c, ok := dc.Data().(*Channel)
		if !ok {
			return
		}
		if dc != c.incomingDC {
			return // traffic on the outgoing side is not consumed
		}
		c.processMessage(message, recvTime)
	})
	if submitted == nil {
		message.Unref()
	}
}

// processMessage routes one inbound frame: system frames to the ping/pong
// handler, application frames to the host.
func (c *Channel) processMessage(message *rtc.Buffer, recvTime uint64) {
	if c.flags&channelFlagDCActive == 0 {
		return
	}
	if c.flags&channelFlagDCReceiveEnabled == 0 {
		return
	}

	if c == c.session.systemChannel {
		c.session.processSystemMessage(message, recvTime)
		return
	}

	c.receive(message)
}
