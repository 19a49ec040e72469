package commands

import (
	"encoding/binary"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pomelo-net/webrtc-plugin/errors"
	"github.com/pomelo-net/webrtc-plugin/host"
	"github.com/pomelo-net/webrtc-plugin/logger"
)

var clockStart = time.Now()

// nanoClock is the stub's monotonic socket clock.
func nanoClock() uint64 {
	return uint64(time.Since(clockStart))
}

// stubHost is a minimal in-process host: it accepts every connect token,
// echoes application messages back to the peer, and services the executor on
// one goroutine. Good enough to drive a browser peer through the full
// handshake.
type stubHost struct {
	log   *zap.SugaredLogger
	modes []host.ChannelMode

	callbacks host.Callbacks

	mu       sync.Mutex
	sessions map[*stubSession]struct{}

	executor     chan func()
	executorDone chan struct{}
}

type stubSocket struct {
	port int
}

type stubSession struct {
	clientID int64
	address  netip.AddrPort

	mu      sync.Mutex
	private any
}

type stubMessage struct {
	payload []byte
}

func newStubHost(channels int) *stubHost {
	if channels < 1 {
		channels = 1
	}
	modes := make([]host.ChannelMode, channels)
	for i := range modes {
		// Alternate tiers so every delivery mode gets exercised.
		modes[i] = host.ChannelMode(i % 3)
	}
	return &stubHost{
		log:      logger.Named("stub-host"),
		modes:    modes,
		sessions: make(map[*stubSession]struct{}),
	}
}

// drain waits for the executor to stop after the last socket closed.
func (h *stubHost) drain() {
	h.mu.Lock()
	done := h.executorDone
	h.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (h *stubHost) Version() string { return "1.0.0" }

func (h *stubHost) ConfigureCallbacks(cb host.Callbacks) {
	h.callbacks = cb
}

func (h *stubHost) SocketChannelCount(host.NativeSocket) int { return len(h.modes) }

func (h *stubHost) SocketChannelMode(_ host.NativeSocket, i int) host.ChannelMode {
	return h.modes[i]
}

func (h *stubHost) SocketTime(host.NativeSocket) uint64 {
	return nanoClock()
}

func (h *stubHost) SessionCreate(_ host.NativeSocket, clientID int64, address netip.AddrPort) (host.NativeSession, error) {
	session := &stubSession{clientID: clientID, address: address}
	h.mu.Lock()
	h.sessions[session] = struct{}{}
	h.mu.Unlock()
	h.log.Infow("session created", "client_id", clientID, "address", address)
	return session, nil
}

func (h *stubHost) SessionDestroy(native host.NativeSession) {
	session := native.(*stubSession)
	h.mu.Lock()
	delete(h.sessions, session)
	h.mu.Unlock()
	h.log.Infow("session destroyed", "client_id", session.clientID)
}

func (h *stubHost) SessionSetPrivate(native host.NativeSession, private any) {
	session := native.(*stubSession)
	session.mu.Lock()
	session.private = private
	session.mu.Unlock()
}

func (h *stubHost) SessionPrivate(native host.NativeSession) any {
	session, ok := native.(*stubSession)
	if !ok {
		return nil
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.private
}

// SessionReceive echoes every inbound message back on the same channel, the
// simplest observable behavior for a development host.
func (h *stubHost) SessionReceive(native host.NativeSession, channelIndex int, message host.Message) {
	if h.callbacks.OnSessionSend != nil {
		h.callbacks.OnSessionSend(native, channelIndex, message)
	}
}

func (h *stubHost) MessageAcquire() host.Message { return &stubMessage{} }

func (h *stubHost) MessageLength(message host.Message) int {
	return len(message.(*stubMessage).payload)
}

func (h *stubHost) MessageRead(message host.Message, dst []byte) error {
	m := message.(*stubMessage)
	if len(dst) != len(m.payload) {
		return errors.New("stub: message length mismatch")
	}
	copy(dst, m.payload)
	return nil
}

func (h *stubHost) MessageWrite(message host.Message, src []byte) error {
	m := message.(*stubMessage)
	m.payload = append(m.payload, src...)
	return nil
}

// ConnectTokenDecode accepts every well-formed token; the client id rides in
// the token's first eight bytes, little-endian. Development only: there is
// no cryptography here.
func (h *stubHost) ConnectTokenDecode(_ host.NativeSocket, token []byte) (*host.TokenInfo, error) {
	if len(token) != host.ConnectTokenBytes {
		return nil, errors.Newf("stub: token must be %d bytes", host.ConnectTokenBytes)
	}
	return &host.TokenInfo{
		ClientID: int64(binary.LittleEndian.Uint64(token[:8])),
		Timeout:  30,
	}, nil
}

func (h *stubHost) ExecutorStartup() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.executor != nil {
		return nil
	}
	h.executor = make(chan func(), 256)
	h.executorDone = make(chan struct{})

	go func(work chan func(), done chan struct{}) {
		defer close(done)
		for fn := range work {
			fn()
		}
	}(h.executor, h.executorDone)
	return nil
}

func (h *stubHost) ExecutorShutdown() {
	h.mu.Lock()
	executor := h.executor
	h.executor = nil
	h.mu.Unlock()
	if executor != nil {
		close(executor)
	}
}

func (h *stubHost) ExecutorSubmit(fn func()) error {
	h.mu.Lock()
	executor := h.executor
	h.mu.Unlock()
	if executor == nil {
		return errors.New("stub: executor not running")
	}
	executor <- fn
	return nil
}

var _ host.Plugin = (*stubHost)(nil)
