package bridge

import (
	"net/netip"

	"github.com/pomelo-net/webrtc-plugin/host"
	"github.com/pomelo-net/webrtc-plugin/pool"
	"github.com/pomelo-net/webrtc-plugin/rtc"
)

const (
	socketFlagActive uint32 = 1 << iota
	socketFlagWSSActive
)

// Socket is one listening endpoint: the WebSocket signaling server bound to
// the native socket's port, the live session set and the channel-mode
// template shared by every session.
//
// A live socket is held by the loop (one reference) and by its signaling
// server (one reference while the server is up). All fields are loop-only.
type Socket struct {
	ctx   *Context
	ref   pool.Reference
	flags uint32

	nativeSocket host.NativeSocket
	channelModes []host.ChannelMode
	sessions     map[*Session]struct{}
	wsServer     *rtc.WSServer
}

func (s *Socket) isActive() bool {
	return s.flags&socketFlagActive != 0
}

// socketCreate stands a socket up for a native socket that started
// listening. Loop-only.
func (ctx *Context) socketCreate(native host.NativeSocket, address netip.AddrPort) *Socket {
	s := ctx.socketPool.Acquire()
	if s == nil {
		ctx.log.Errorw("socket pool exhausted")
		return nil
	}
	s.ref.Init(s.onFinalize)

	if err := s.hostInit(native); err != nil {
		ctx.log.Errorw("failed to attach native socket", "error", err)
		s.hostCleanup()
		ctx.socketPool.Release(s)
		return nil
	}
	if err := s.wssInit(address); err != nil {
		ctx.log.Errorw("failed to start signaling server",
			"port", address.Port(), "error", err)
		s.hostCleanup()
		ctx.socketPool.Release(s)
		return nil
	}

	s.flags |= socketFlagActive
	ctx.log.Infow("socket listening",
		"port", address.Port(), "channels", len(s.channelModes))
	return s
}

// close deactivates the socket, closes every session and tears the
// signaling server down. Idempotent.
func (s *Socket) close() {
	if !s.isActive() {
		return
	}
	s.flags &^= socketFlagActive

	for session := range s.sessions {
		delete(s.sessions, session)
		session.close()
	}

	s.wssClose()

	s.ref.Unref()
}

// removeSession detaches a session from the live set.
func (s *Socket) removeSession(session *Session) {
	delete(s.sessions, session)
}

// createSession admits one accepted signaling client.
func (s *Socket) createSession(wsClient *rtc.WSClient) *Session {
	session := s.ctx.sessionAcquire(s, wsClient)
	if session == nil {
		return nil
	}
	s.sessions[session] = struct{}{}
	return session
}

// onFinalize runs when the last reference drops; the release is enqueued so
// teardown never reenters the dropping holder.
func (s *Socket) onFinalize() {
	ctx := s.ctx
	if ctx.submit(func() { ctx.socketRelease(s) }) == nil {
		ctx.socketRelease(s)
	}
}

// socketRelease returns a finalized socket to its pool. Loop-only (or
// called during shutdown drain).
func (ctx *Context) socketRelease(s *Socket) {
	s.wssCleanup()
	s.hostCleanup()

	for session := range s.sessions {
		delete(s.sessions, session)
	}
	s.channelModes = nil
	s.flags = 0

	ctx.socketPool.Release(s)
}
