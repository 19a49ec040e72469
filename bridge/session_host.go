package bridge

import (
	"github.com/pomelo-net/webrtc-plugin/errors"
	"github.com/pomelo-net/webrtc-plugin/host"
)

// Host plane of the session: native session lifecycle and the operations
// the host drives from its own threads.

// hostOpen creates the native session on the host executor. The session is
// held across the call.
func (s *Session) hostOpen() {
	ctx := s.ctx

	if !s.ref.Ref() {
		return
	}

	socket := s.socket.nativeSocket
	clientID := s.clientID
	address := s.address

	err := ctx.hostPlugin.ExecutorSubmit(func() {
		native, createErr := ctx.hostPlugin.SessionCreate(socket, clientID, address)
		if createErr != nil {
			ctx.log.Warnw("native session create failed",
				"client_id", clientID, "error", createErr)
			native = nil
		}
		if ctx.submit(func() {
			s.onHostSessionCreated(native)
			s.ref.Unref()
		}) == nil {
			// Loop gone; the native session has no owner left.
			if native != nil {
				ctx.hostPlugin.SessionDestroy(native)
			}
			s.ref.Unref()
		}
	})
	if err != nil {
		s.ref.Unref()
	}
	// => onHostSessionCreated
}

// onHostSessionCreated resumes on the loop with the native handle (nil on
// failure).
func (s *Session) onHostSessionCreated(native host.NativeSession) {
	if native == nil {
		s.close()
		return
	}

	s.nativeSession = native
	s.ctx.hostPlugin.SessionSetPrivate(native, s)

	s.onConnected()
}

// hostClose destroys the native session, if any, on the host executor.
func (s *Session) hostClose() {
	s.hostDestroyNativeSession()
}

func (s *Session) hostCleanup() {
	s.hostDestroyNativeSession()
}

func (s *Session) hostDestroyNativeSession() {
	if s.nativeSession == nil {
		return
	}
	ctx := s.ctx
	native := s.nativeSession
	s.nativeSession = nil

	if err := ctx.hostPlugin.ExecutorSubmit(func() {
		ctx.hostPlugin.SessionDestroy(native)
	}); err != nil {
		ctx.log.Debugw("native session destroy submit failed", "error", err)
	}
}

/* ---------------------------- host callbacks ---------------------------- */

// hostOnSessionDisconnect arrives on a host thread when the host kicks a
// session.
func (ctx *Context) hostOnSessionDisconnect(native host.NativeSession) {
	ctx.submit(func() {
		if s, ok := ctx.hostPlugin.SessionPrivate(native).(*Session); ok {
			s.close()
		}
	})
}

// hostOnSessionGetRTT reads the session's RTT. Called from any host thread;
// the values are atomics, so no loop hop is needed.
func (ctx *Context) hostOnSessionGetRTT(native host.NativeSession) (mean, variance uint64) {
	if s, ok := ctx.hostPlugin.SessionPrivate(native).(*Session); ok {
		return s.rtt.Get()
	}
	return 0, 0
}

// hostOnSessionSetMode arrives on a host thread to change one channel's
// delivery tier.
func (ctx *Context) hostOnSessionSetMode(native host.NativeSession, channelIndex int, mode host.ChannelMode) error {
	submitted := ctx.submit(func() {
		s, ok := ctx.hostPlugin.SessionPrivate(native).(*Session)
		if !ok {
			return
		}
		channel := s.channelAt(channelIndex)
		if channel == nil {
			return
		}
		if err := channel.setMode(mode); err != nil {
			ctx.log.Warnw("channel mode change failed",
				"session", s.traceID, "channel", channelIndex, "error", err)
		}
	})
	if submitted == nil {
		return errors.New("bridge: dispatcher unavailable")
	}
	return nil
}

// hostOnSessionSend arrives on a host thread with a message to deliver. The
// message is only valid inside this call, so it is staged into a provider
// buffer before the loop hop.
func (ctx *Context) hostOnSessionSend(native host.NativeSession, channelIndex int, message host.Message) {
	length := ctx.hostPlugin.MessageLength(message)
	if length == 0 {
		return
	}

	buffer, data := ctx.rtcContext.PrepareBuffer(length)
	if err := ctx.hostPlugin.MessageRead(message, data); err != nil {
		ctx.log.Debugw("host message read failed", "error", err)
		buffer.Unref()
		return
	}

	submitted := ctx.submit(func() {
		defer buffer.Unref()

		s, ok := ctx.hostPlugin.SessionPrivate(native).(*Session)
		if !ok {
			return
		}
		channel := s.channelAt(channelIndex)
		if channel == nil || channel == s.systemChannel {
			return
		}
		channel.sendBuffer(buffer)
	})
	if submitted == nil {
		buffer.Unref()
	}
}
