package bridge

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pomelo-net/webrtc-plugin/codec"
	"github.com/pomelo-net/webrtc-plugin/host"
	"github.com/pomelo-net/webrtc-plugin/pool"
	"github.com/pomelo-net/webrtc-plugin/rtc"
	"github.com/pomelo-net/webrtc-plugin/rtt"
	"github.com/pomelo-net/webrtc-plugin/task"
)

// pingInterval is the system-channel ping cadence (10 Hz).
const pingInterval = 100 * time.Millisecond

// authTimeout bounds the wait for the client's AUTH frame. A variable so
// tests can tighten it.
var authTimeout = 5000 * time.Millisecond

// System-channel frame layout: one header byte, then packed integers.
const (
	sysOpcodePing = 0
	sysOpcodePong = 1

	// Header + up to 8 sequence bytes.
	sysPingCapacity = 9
	// Header + up to 8 sequence bytes + up to 8 time bytes.
	sysPongCapacity = 17

	sysPingMinLength = 2
	sysPongMinLength = 3
)

const (
	sessionFlagActive uint32 = 1 << iota
	sessionFlagWSActive
	sessionFlagWSAuthenticated
	sessionFlagPCActive
	sessionFlagReadyReceived
	sessionFlagAllChannelsOpened
)

// sessionFlagsConnected gates the transition into CONNECTING: every data
// channel open and the peer's READY received, in either order.
const sessionFlagsConnected = sessionFlagReadyReceived | sessionFlagAllChannelsOpened

// Session is one peer connection: the signaling client, the peer connection,
// the channel vector plus the system channel, the RTT calculator and the
// lifecycle flags.
//
// A live session is held by its socket, by the signaling client while open,
// by the peer connection while open and by each channel. All fields are
// loop-only except rtt, whose readings are atomic.
type Session struct {
	ctx   *Context
	ref   pool.Reference
	flags uint32

	socket        *Socket
	wsClient      *rtc.WSClient
	pc            *rtc.PeerConnection
	channels      []*Channel
	systemChannel *Channel

	openedChannels int
	rtt            *rtt.Calculator
	clientID       int64
	address        netip.AddrPort
	nativeSession  host.NativeSession

	timeoutTask *task.ScheduledTask
	pingTask    *task.ScheduledTask

	limiter *rate.Limiter
	traceID string
}

func (s *Session) isActive() bool {
	return s.flags&sessionFlagActive != 0
}

func (s *Session) isConnected() bool {
	return s.flags&sessionFlagsConnected == sessionFlagsConnected
}

// sessionAcquire admits an accepted signaling client as a new session and
// starts its authentication deadline. Loop-only.
func (ctx *Context) sessionAcquire(socket *Socket, wsClient *rtc.WSClient) *Session {
	s := ctx.sessionPool.Acquire()
	if s == nil {
		ctx.log.Errorw("session pool exhausted")
		wsClient.Destroy()
		return nil
	}

	s.ref.Init(s.onFinalize)
	s.socket = socket
	s.flags = sessionFlagActive
	s.traceID = uuid.NewString()
	s.limiter = rate.NewLimiter(rate.Limit(ctx.cfg.SignalRateLimit), ctx.cfg.SignalRateBurst)

	// The session holds its socket alive.
	socket.ref.Ref()

	s.wsInit(wsClient)

	if err := s.pcInit(); err != nil {
		ctx.log.Errorw("peer connection create failed",
			"session", s.traceID, "error", err)
		s.close()
		return nil
	}

	if s.scheduleTimeout(authTimeout) == nil {
		s.close()
		return nil
	}

	ctx.log.Debugw("session accepted",
		"session", s.traceID, "remote", wsClient.RemoteAddr())
	return s
}

// close requests teardown of every component. Idempotent; the session is
// released once every holder has dropped its reference.
func (s *Session) close() {
	if !s.isActive() {
		return
	}
	s.flags &^= sessionFlagActive

	s.stopPing()
	s.unscheduleTimeout()

	for _, channel := range s.channels {
		if channel != nil {
			channel.close()
		}
	}
	if s.systemChannel != nil {
		s.systemChannel.close()
	}

	s.wsClose()
	s.pcClose()
	s.hostClose()

	s.socket.removeSession(s)

	s.ctx.log.Debugw("session closing", "session", s.traceID, "client_id", s.clientID)
	s.ref.Unref()
}

// removeChannel clears a closed channel's slot.
func (s *Session) removeChannel(channel *Channel) {
	if channel.index == systemChannelIndex {
		if s.systemChannel == channel {
			s.systemChannel = nil
		}
		return
	}
	if channel.index < len(s.channels) && s.channels[channel.index] == channel {
		s.channels[channel.index] = nil
	}
}

// onChannelOpened counts outgoing data-channel opens; the system channel is
// the +1.
func (s *Session) onChannelOpened(*Channel) {
	s.openedChannels++
	if s.openedChannels == len(s.channels)+1 {
		s.onAllChannelsOpened()
	}
}

// onAllChannelsOpened tells the peer this side is ready, starts the ping
// loop and arms the connected gate.
func (s *Session) onAllChannelsOpened() {
	s.wsSendReady()
	s.startPing()

	s.flags |= sessionFlagAllChannelsOpened
	if s.isConnected() {
		s.onReady()
	}
}

// recvReady handles the peer's application-level READY signal.
func (s *Session) recvReady() {
	if s.flags&sessionFlagReadyReceived != 0 {
		return
	}
	s.flags |= sessionFlagReadyReceived
	if s.isConnected() {
		s.onReady()
	}
}

// onAuthResult resumes the state machine after token decoding. A nil info
// means authentication failed.
func (s *Session) onAuthResult(info *host.TokenInfo) {
	s.unscheduleTimeout()

	if info == nil {
		s.close()
		return
	}

	if !s.createChannels() {
		s.close()
		return
	}

	// Negotiation gets the token's own deadline.
	if info.Timeout > 0 {
		if s.scheduleTimeout(time.Duration(info.Timeout) * time.Second) == nil {
			s.close()
			return
		}
	}

	s.pcNegotiate()
}

// createChannels builds one channel per template slot plus the system
// channel. Opens are counted as the outgoing data channels come up.
func (s *Session) createChannels() bool {
	modes := s.socket.channelModes
	s.channels = make([]*Channel, len(modes))

	for i, mode := range modes {
		channel := s.ctx.channelAcquire(s, i, mode)
		if channel == nil {
			return false
		}
		s.channels[i] = channel
	}

	s.systemChannel = s.ctx.channelAcquire(s, systemChannelIndex, host.ModeUnreliable)
	return s.systemChannel != nil
	// Opens arrive as dcOnOpen → onChannelOpened.
}

// onReady runs when both connected sub-conditions hold: resolve the peer's
// transport address and create the native session.
func (s *Session) onReady() {
	s.unscheduleTimeout()

	address, err := s.pc.RemoteAddr()
	if err != nil {
		s.ctx.log.Warnw("remote address unavailable",
			"session", s.traceID, "error", err)
	} else {
		s.address = address
	}

	s.hostOpen()
	// => onHostSessionCreated
}

// onConnected runs once the native session exists: open the receive gates
// and confirm to the peer.
func (s *Session) onConnected() {
	for _, channel := range s.channels {
		if channel != nil {
			channel.enableReceiving()
		}
	}
	if s.systemChannel != nil {
		s.systemChannel.enableReceiving()
	}

	s.wsSendConnected()

	s.ctx.log.Infow("session connected",
		"session", s.traceID, "client_id", s.clientID, "remote", s.address)
}

// scheduleTimeout arms the deadline for the current phase. The previous
// deadline must have been cleared.
func (s *Session) scheduleTimeout(timeout time.Duration) *task.ScheduledTask {
	s.timeoutTask = s.ctx.dispatcher.Schedule(func() {
		s.unscheduleTimeout()
		s.ctx.log.Debugw("session deadline expired", "session", s.traceID)
		s.close()
	}, timeout)
	return s.timeoutTask
}

func (s *Session) unscheduleTimeout() {
	if s.timeoutTask != nil {
		s.ctx.dispatcher.Unschedule(s.timeoutTask)
		s.timeoutTask = nil
	}
}

// startPing begins the system-channel ping cadence.
func (s *Session) startPing() {
	s.pingTask = s.ctx.dispatcher.Schedule(s.sendPing, pingInterval)
}

func (s *Session) stopPing() {
	if s.pingTask != nil {
		s.ctx.dispatcher.Unschedule(s.pingTask)
		s.pingTask = nil
	}
}

// sendPing emits one ping on the system channel.
func (s *Session) sendPing() {
	entry := s.rtt.NextEntry(nanotime())

	sequenceBytes := codec.PackedUint64Bytes(entry.Sequence)

	var data [sysPingCapacity]byte
	payload := codec.NewPayload(data[:])

	header := uint8(sysOpcodePing<<6) | uint8((sequenceBytes-1)&0x07)<<3
	payload.WriteUint8(header)
	payload.WritePackedUint64(sequenceBytes, entry.Sequence)

	s.systemChannel.send(payload.Bytes())
}

// sendPong answers a peer ping, echoing its sequence with the socket clock.
func (s *Session) sendPong(pongSequence, socketTime uint64) {
	sequenceBytes := codec.PackedUint64Bytes(pongSequence)
	timeBytes := codec.PackedUint64Bytes(socketTime)

	var data [sysPongCapacity]byte
	payload := codec.NewPayload(data[:])

	header := uint8(sysOpcodePong<<6) |
		uint8((sequenceBytes-1)&0x07)<<3 |
		uint8((timeBytes-1)&0x07)
	payload.WriteUint8(header)
	payload.WritePackedUint64(sequenceBytes, pongSequence)
	payload.WritePackedUint64(timeBytes, socketTime)

	s.systemChannel.send(payload.Bytes())
}

// processSystemMessage dispatches one system-channel frame. Unknown opcodes
// are ignored.
func (s *Session) processSystemMessage(message *rtc.Buffer, recvTime uint64) {
	data := message.Data()
	if len(data) == 0 {
		return
	}

	switch data[0] >> 6 {
	case sysOpcodePing:
		s.processPing(data, recvTime)
	case sysOpcodePong:
		s.processPong(data, recvTime)
	}
}

// processPing answers a peer ping with a pong carrying the socket clock.
func (s *Session) processPing(data []byte, recvTime uint64) {
	if len(data) < sysPingMinLength || len(data) > sysPingCapacity {
		return
	}

	sequenceBytes := int((data[0]>>3)&0x07) + 1
	payload := codec.NewPayload(data[1:])
	sequence, err := payload.ReadPackedUint64(sequenceBytes)
	if err != nil {
		return
	}

	_ = recvTime
	s.sendPong(sequence, s.socket.time())
}

// processPong folds a pong for one of our pings into the RTT window. Any
// trailing client time is ignored.
func (s *Session) processPong(data []byte, recvTime uint64) {
	if len(data) < sysPongMinLength || len(data) > sysPongCapacity {
		return
	}

	sequenceBytes := int((data[0]>>3)&0x07) + 1
	payload := codec.NewPayload(data[1:])
	sequence, err := payload.ReadPackedUint64(sequenceBytes)
	if err != nil {
		return
	}

	entry := s.rtt.Entry(sequence)
	if entry == nil {
		return // stale or unknown sequence
	}
	s.rtt.Submit(entry, recvTime, 0)
}

// onFinalize runs when the last reference drops.
func (s *Session) onFinalize() {
	ctx := s.ctx
	if ctx.submit(func() { ctx.sessionRelease(s) }) == nil {
		ctx.sessionRelease(s)
	}
}

// sessionRelease returns a finalized session to its pool.
func (ctx *Context) sessionRelease(s *Session) {
	socket := s.socket

	s.wsCleanup()
	s.pcCleanup()
	s.hostCleanup()

	s.unscheduleTimeout()
	s.stopPing()

	s.channels = nil
	s.systemChannel = nil
	s.openedChannels = 0
	s.flags = 0
	s.socket = nil
	s.clientID = 0
	s.address = netip.AddrPort{}
	s.limiter = nil
	s.rtt.Reset()

	ctx.sessionPool.Release(s)

	// The released session no longer holds its socket.
	socket.ref.Unref()
}
