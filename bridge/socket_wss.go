package bridge

import (
	"net/netip"

	"github.com/pomelo-net/webrtc-plugin/errors"
	"github.com/pomelo-net/webrtc-plugin/rtc"
)

// wssInit stands the signaling server up on the native socket's port.
// WebSocket runs over TCP while the native socket owns UDP, so sharing the
// port number is fine; it is the product contract.
func (s *Socket) wssInit(address netip.AddrPort) error {
	cfg := s.ctx.cfg
	server, err := rtc.NewWSServer(rtc.WSServerOptions{
		Context:        s.ctx.rtcContext,
		Port:           int(address.Port()),
		TLSCertFile:    cfg.TLSCertFile,
		TLSKeyFile:     cfg.TLSKeyFile,
		MaxMessageSize: int64(cfg.MaxSignalMessageBytes),
		Data:           s,
	})
	if err != nil {
		return errors.Wrap(err, "signaling server create failed")
	}

	s.wsServer = server
	s.flags |= socketFlagWSSActive

	// The server holds the socket until it has fully stopped.
	s.ref.Ref()
	return nil
}

func (s *Socket) wssCleanup() {
	if s.wsServer != nil {
		s.wsServer.Destroy()
		s.wsServer = nil
	}
}

// wssOnClient fires on the server's accept goroutine.
func (ctx *Context) wssOnClient(server *rtc.WSServer, client *rtc.WSClient) {
	ctx.submit(func() {
		s, ok := server.Data().(*Socket)
		if !ok || s.flags&socketFlagWSSActive == 0 {
			client.Destroy()
			return
		}
		s.createSession(client)
	})
}

// wssClose stops the signaling server. The stop blocks until every client
// pump has exited, so it runs on a worker; a follow-up loop task delivers
// the "fully closed" signal so the server's reference drops in order.
func (s *Socket) wssClose() {
	if s.flags&socketFlagWSSActive == 0 {
		return
	}
	s.flags &^= socketFlagWSSActive

	ctx := s.ctx
	server := s.wsServer
	ok := ctx.dispatcher.Spawn(
		func() { server.Close() },
		func() { s.wssOnClosed() },
	)
	if !ok {
		// Shutdown already in flight; close inline and drop the reference.
		server.Close()
		s.wssOnClosed()
	}
}

// wssOnClosed runs on the loop after the server has fully stopped; no more
// server callbacks can arrive.
func (s *Socket) wssOnClosed() {
	s.ref.Unref()
}
