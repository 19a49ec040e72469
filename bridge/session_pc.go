package bridge

import (
	"github.com/pomelo-net/webrtc-plugin/errors"
	"github.com/pomelo-net/webrtc-plugin/rtc"
)

// Peer-connection (media plane) side of the session.

func (s *Session) pcIsActive() bool {
	return s.flags&sessionFlagPCActive != 0
}

// pcInit creates the peer connection. The connection holds the session until
// its closed notification has been processed.
func (s *Session) pcInit() error {
	pc, err := rtc.NewPeerConnection(rtc.PeerConnectionOptions{
		Context: s.ctx.rtcContext,
		Data:    s,
	})
	if err != nil {
		return errors.Wrap(err, "peer connection create failed")
	}

	s.pc = pc
	s.flags |= sessionFlagPCActive

	s.ref.Ref()
	return nil
}

func (s *Session) pcCleanup() {
	if s.pc != nil {
		s.pc.Destroy()
		s.pc = nil
	}
}

func (s *Session) pcClose() {
	if !s.pcIsActive() {
		return
	}
	s.flags &^= sessionFlagPCActive
	s.pc.Close()
	// => pcOnClosed via the state-change callback
}

// pcNegotiate creates the offer and ships it to the peer. Candidates
// trickle separately through the local-candidate callback.
func (s *Session) pcNegotiate() {
	if err := s.pc.SetLocalDescription(""); err != nil {
		s.ctx.log.Warnw("offer failed", "session", s.traceID, "error", err)
		s.close()
		return
	}

	s.wsSendDescription(s.pc.LocalDescriptionSDP(), s.pc.LocalDescriptionType())
}

func (s *Session) pcSetRemoteDescription(sdp, descriptionType string) {
	if err := s.pc.SetRemoteDescription(sdp, descriptionType); err != nil {
		s.ctx.log.Debugw("remote description rejected",
			"session", s.traceID, "type", descriptionType, "error", err)
	}
}

func (s *Session) pcAddRemoteCandidate(candidate, mid string) {
	if err := s.pc.AddRemoteCandidate(candidate, mid); err != nil {
		s.ctx.log.Debugw("remote candidate rejected",
			"session", s.traceID, "error", err)
	}
}

// pcOnClosed finishes the connection teardown on the loop.
func (s *Session) pcOnClosed() {
	s.close()
	s.ref.Unref() // the connection no longer holds the session
}

/* -------------------------- provider callbacks -------------------------- */

// pcOnLocalCandidate fires on a pion goroutine for every gathered candidate.
func (ctx *Context) pcOnLocalCandidate(pc *rtc.PeerConnection, candidate, mid string) {
	ctx.submit(func() {
		s, ok := pc.Data().(*Session)
		if !ok || !s.pcIsActive() {
			return
		}
		s.wsSendCandidate(candidate, mid)
	})
}

// pcOnStateChange fires on a pion goroutine for connection state moves.
func (ctx *Context) pcOnStateChange(pc *rtc.PeerConnection, state rtc.PeerConnectionState) {
	ctx.submit(func() {
		s, ok := pc.Data().(*Session)
		if !ok {
			return
		}
		switch state {
		case rtc.PeerConnectionStateConnected:
			// Channels report their own opens; nothing to do here.
		case rtc.PeerConnectionStateDisconnected, rtc.PeerConnectionStateFailed:
			ctx.log.Debugw("peer connection lost",
				"session", s.traceID, "state", state)
			s.pc.Close()
		case rtc.PeerConnectionStateClosed:
			s.pcOnClosed()
		}
	})
}

// pcOnDataChannel fires on a pion goroutine when the peer opens its side of
// a channel pair. The label selects the pair; anything unparseable closes
// the session.
func (ctx *Context) pcOnDataChannel(pc *rtc.PeerConnection, dc *rtc.DataChannel) {
	index, valid := parseClientChannelLabel(dc.Label())
	ctx.submit(func() {
		s, ok := pc.Data().(*Session)
		if !ok {
			return
		}
		if !valid {
			ctx.log.Warnw("unexpected data channel label",
				"session", s.traceID, "label", dc.Label())
			s.close()
			return
		}

		channel := s.channelAt(index)
		if channel == nil {
			return // no matching slot; ignore
		}
		channel.setIncomingDataChannel(dc)
	})
}

// channelAt returns the channel in a slot, nil when out of range or closed.
func (s *Session) channelAt(index int) *Channel {
	if index == systemChannelIndex {
		return s.systemChannel
	}
	if index < 0 || index >= len(s.channels) {
		return nil
	}
	return s.channels[index]
}
