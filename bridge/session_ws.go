package bridge

import (
	"bytes"
	"strconv"

	"github.com/pomelo-net/webrtc-plugin/host"
	"github.com/pomelo-net/webrtc-plugin/rtc"
)

// Signaling (WebSocket) side of the session.

func (s *Session) wsIsActive() bool {
	return s.flags&sessionFlagWSActive != 0
}

func (s *Session) wsIsAuthenticated() bool {
	return s.flags&sessionFlagWSAuthenticated != 0
}

// wsInit adopts the accepted client. The client holds the session until its
// closed callback has been processed.
func (s *Session) wsInit(wsClient *rtc.WSClient) {
	s.wsClient = wsClient
	s.flags |= sessionFlagWSActive
	wsClient.SetData(s)

	s.ref.Ref()
}

func (s *Session) wsCleanup() {
	if s.wsClient != nil {
		s.wsClient.Destroy()
		s.wsClient = nil
	}
}

// wsClose asks the client to close; the closed callback finishes the job.
func (s *Session) wsClose() {
	if !s.wsIsActive() {
		return
	}
	s.flags &^= sessionFlagWSActive
	s.wsClient.Close()
	// => wsOnClosed
}

/* -------------------------- provider callbacks -------------------------- */

// wsOnClosed fires on a pump goroutine when a signaling connection dies.
func (ctx *Context) wsOnClosed(client *rtc.WSClient) {
	ctx.submit(func() {
		s, ok := client.Data().(*Session)
		if !ok {
			return
		}
		s.wsOnClosed()
	})
}

// wsOnError fires on a pump goroutine; the closed callback follows.
func (ctx *Context) wsOnError(client *rtc.WSClient, err error) {
	ctx.log.Debugw("signaling client error", "error", err)
}

// wsOnMessage fires on a pump goroutine for every inbound frame. The buffer
// is ref-bumped across the loop hop.
func (ctx *Context) wsOnMessage(client *rtc.WSClient, message *rtc.Buffer) {
	message.Ref()
	submitted := ctx.submit(func() {
		defer message.Unref()
		s, ok := client.Data().(*Session)
		if !ok || !s.wsIsActive() {
			return
		}
		s.wsProcessMessage(message.Data())
	})
	if submitted == nil {
		message.Unref()
	}
}

// wsOnClosed finishes the peer-initiated close on the loop.
func (s *Session) wsOnClosed() {
	s.close()
	s.ref.Unref() // the client no longer holds the session
}

/* ------------------------------ processing ------------------------------ */

// wsProcessMessage routes one signaling frame. A trailing NUL terminator is
// part of the wire convention and is stripped first.
func (s *Session) wsProcessMessage(frame []byte) {
	if !s.limiter.Allow() {
		return // flooding; drop the frame
	}

	frame = trimTerminator(frame)
	if len(frame) == 0 {
		return
	}

	if s.wsIsAuthenticated() {
		s.wsProcessAuthenticated(frame)
	} else {
		s.wsProcessUnauthenticated(frame)
	}
}

// wsProcessUnauthenticated accepts only AUTH. Anything else is dropped; the
// auth deadline handles silent peers.
func (s *Session) wsProcessUnauthenticated(frame []byte) {
	opcode, rest := frameOpcode(frame)
	if !bytes.Equal(opcode, []byte(opcodeAuth)) || len(rest) == 0 {
		return
	}
	s.wsRecvAuth(rest)
}

func (s *Session) wsProcessAuthenticated(frame []byte) {
	opcode, rest := frameOpcode(frame)
	switch string(opcode) {
	case opcodeDescription:
		s.wsProcessDescription(rest)
	case opcodeCandidate:
		s.wsProcessCandidate(rest)
	case opcodeReady:
		s.recvReady()
	}
}

// wsRecvAuth decodes the token and asks the host to authenticate.
func (s *Session) wsRecvAuth(encoded []byte) {
	token, err := decodeConnectToken(encoded)
	if err != nil {
		s.ctx.log.Debugw("connect token rejected",
			"session", s.traceID, "error", err)
		s.wsAuthResult(nil)
		return
	}

	info, err := s.ctx.hostPlugin.ConnectTokenDecode(s.socket.nativeSocket, token)
	if err != nil {
		s.ctx.log.Debugw("connect token decode failed",
			"session", s.traceID, "error", err)
		s.wsAuthResult(nil)
		return
	}

	s.clientID = info.ClientID
	s.wsAuthResult(info)
}

// wsAuthResult answers the peer and resumes the state machine.
func (s *Session) wsAuthResult(info *host.TokenInfo) {
	if info != nil {
		s.flags |= sessionFlagWSAuthenticated
		s.wsSendAuthSuccess()
	} else {
		s.wsSendFrame([]byte(resultAuthFailed))
	}

	s.onAuthResult(info)
}

// wsProcessDescription parses DESC|<type>|<sdp>.
func (s *Session) wsProcessDescription(payload []byte) {
	descriptionType, sdp, ok := splitField(payload)
	if !ok || len(descriptionType) == 0 {
		return
	}
	s.pcSetRemoteDescription(string(sdp), string(descriptionType))
}

// wsProcessCandidate parses CAND|<mid>|<candidate>.
func (s *Session) wsProcessCandidate(payload []byte) {
	mid, candidate, ok := splitField(payload)
	if !ok {
		return
	}
	s.pcAddRemoteCandidate(string(candidate), string(mid))
}

/* ------------------------------- senders -------------------------------- */

func (s *Session) wsSendFrame(frame []byte) {
	if !s.wsIsActive() {
		return
	}
	if err := s.wsClient.Send(frame); err != nil {
		s.ctx.log.Debugw("signaling send failed",
			"session", s.traceID, "error", err)
	}
}

// wsSendAuthSuccess emits AUTH|OK|<client_id>|<server_time_ns>.
func (s *Session) wsSendAuthSuccess() {
	if !s.wsIsActive() {
		return
	}
	builder := s.ctx.acquireBuilder()
	if builder == nil {
		return
	}
	defer s.ctx.releaseBuilder(builder)

	builder.WriteString(resultAuthOK)
	builder.WriteByte(messageSeparator)
	builder.WriteString(strconv.FormatInt(s.clientID, 10))
	builder.WriteByte(messageSeparator)
	builder.WriteString(strconv.FormatUint(s.socket.time(), 10))

	s.wsSendFrame(builder.Bytes())
}

// wsSendDescription emits DESC|<type>|<sdp>.
func (s *Session) wsSendDescription(sdp, descriptionType string) {
	if !s.wsIsActive() {
		return
	}
	builder := s.ctx.acquireBuilder()
	if builder == nil {
		return
	}
	defer s.ctx.releaseBuilder(builder)

	builder.WriteString(opcodeDescription)
	builder.WriteByte(messageSeparator)
	builder.WriteString(descriptionType)
	builder.WriteByte(messageSeparator)
	builder.WriteString(sdp)

	s.wsSendFrame(builder.Bytes())
}

// wsSendCandidate emits CAND|<mid>|<candidate>.
func (s *Session) wsSendCandidate(candidate, mid string) {
	if !s.wsIsActive() {
		return
	}
	builder := s.ctx.acquireBuilder()
	if builder == nil {
		return
	}
	defer s.ctx.releaseBuilder(builder)

	builder.WriteString(opcodeCandidate)
	builder.WriteByte(messageSeparator)
	builder.WriteString(mid)
	builder.WriteByte(messageSeparator)
	builder.WriteString(candidate)

	s.wsSendFrame(builder.Bytes())
}

// wsSendReady tells the peer this side's channels are all open.
func (s *Session) wsSendReady() {
	s.wsSendFrame([]byte(opcodeReady))
}

// wsSendConnected confirms the native session to the peer.
func (s *Session) wsSendConnected() {
	s.wsSendFrame([]byte(opcodeConnected))
}
