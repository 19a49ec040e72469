package bridge

import (
	"net/netip"

	"github.com/pomelo-net/webrtc-plugin/errors"
	"github.com/pomelo-net/webrtc-plugin/host"
)

// hostInit reads the channel template off the native socket, maps the native
// handle to this socket and accounts it against the executor.
func (s *Socket) hostInit(native host.NativeSocket) error {
	ctx := s.ctx

	nchannels := ctx.hostPlugin.SocketChannelCount(native)
	if nchannels < 1 || nchannels > host.MaxChannels {
		return errors.Newf("native socket reports %d channels", nchannels)
	}

	s.nativeSocket = native
	s.channelModes = make([]host.ChannelMode, nchannels)
	for i := 0; i < nchannels; i++ {
		s.channelModes[i] = ctx.hostPlugin.SocketChannelMode(native, i)
	}

	ctx.sockets[native] = s
	if err := ctx.attachSocket(); err != nil {
		delete(ctx.sockets, native)
		s.nativeSocket = nil
		s.channelModes = nil
		return err
	}
	return nil
}

// hostCleanup unmaps the native socket and drops the executor account.
func (s *Socket) hostCleanup() {
	if s.nativeSocket == nil {
		return
	}
	ctx := s.ctx
	delete(ctx.sockets, s.nativeSocket)
	s.nativeSocket = nil
	ctx.detachSocket()
}

// time reads the native socket clock.
func (s *Socket) time() uint64 {
	return s.ctx.hostPlugin.SocketTime(s.nativeSocket)
}

// hostOnSocketListening arrives on a host thread when a native socket starts
// listening.
func (ctx *Context) hostOnSocketListening(native host.NativeSocket, address netip.AddrPort) {
	ctx.submit(func() {
		ctx.socketCreate(native, address)
	})
}

// hostOnSocketStopped arrives on a host thread when a native socket stops.
func (ctx *Context) hostOnSocketStopped(native host.NativeSocket) {
	ctx.submit(func() {
		if s, ok := ctx.sockets[native]; ok {
			s.close()
		}
	})
}
