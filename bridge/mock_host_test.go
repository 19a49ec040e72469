package bridge

import (
	"net/netip"
	"sync"

	"github.com/pomelo-net/webrtc-plugin/errors"
	"github.com/pomelo-net/webrtc-plugin/host"
)

// =============================================================================
// Mock Host Implementation
// =============================================================================

type mockSocket struct {
	id int
}

type mockSession struct {
	clientID int64
	address  netip.AddrPort

	mu       sync.Mutex
	private  any
	received [][]byte
	channels []int
}

func (m *mockSession) receivedFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.received...)
}

type mockMessage struct {
	payload []byte
}

type mockHost struct {
	mu sync.Mutex

	version      string
	callbacks    host.Callbacks
	channelModes []host.ChannelMode
	socketTime   uint64

	tokenInfo *host.TokenInfo
	decodeErr error
	createErr error

	executorStarted int
	executorStopped int
	timeCalls       int

	// inlineExecutor runs submitted work synchronously, preserving the
	// submission order a serial host executor would.
	inlineExecutor bool

	sessionsCreated   []*mockSession
	sessionsDestroyed int
}

func newMockHost() *mockHost {
	return &mockHost{
		version: "1.4.2",
		channelModes: []host.ChannelMode{
			host.ModeReliable,
			host.ModeUnreliable,
		},
		socketTime: 1_000_000,
		tokenInfo: &host.TokenInfo{
			ClientID: 42,
			Timeout:  30,
		},
	}
}

func (m *mockHost) Version() string { return m.version }

func (m *mockHost) ConfigureCallbacks(cb host.Callbacks) {
	m.mu.Lock()
	m.callbacks = cb
	m.mu.Unlock()
}

func (m *mockHost) Callbacks() host.Callbacks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callbacks
}

func (m *mockHost) SocketChannelCount(host.NativeSocket) int {
	return len(m.channelModes)
}

func (m *mockHost) SocketChannelMode(_ host.NativeSocket, i int) host.ChannelMode {
	return m.channelModes[i]
}

func (m *mockHost) SocketTime(host.NativeSocket) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeCalls++
	return m.socketTime
}

func (m *mockHost) SessionCreate(_ host.NativeSocket, clientID int64, address netip.AddrPort) (host.NativeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	session := &mockSession{clientID: clientID, address: address}
	m.sessionsCreated = append(m.sessionsCreated, session)
	return session, nil
}

func (m *mockHost) SessionDestroy(host.NativeSession) {
	m.mu.Lock()
	m.sessionsDestroyed++
	m.mu.Unlock()
}

func (m *mockHost) SessionSetPrivate(session host.NativeSession, private any) {
	ms := session.(*mockSession)
	ms.mu.Lock()
	ms.private = private
	ms.mu.Unlock()
}

func (m *mockHost) SessionPrivate(session host.NativeSession) any {
	ms, ok := session.(*mockSession)
	if !ok {
		return nil
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.private
}

func (m *mockHost) SessionReceive(session host.NativeSession, channelIndex int, message host.Message) {
	ms := session.(*mockSession)
	mm := message.(*mockMessage)
	ms.mu.Lock()
	ms.received = append(ms.received, append([]byte(nil), mm.payload...))
	ms.channels = append(ms.channels, channelIndex)
	ms.mu.Unlock()
}

func (m *mockHost) MessageAcquire() host.Message {
	return &mockMessage{}
}

func (m *mockHost) MessageLength(message host.Message) int {
	return len(message.(*mockMessage).payload)
}

func (m *mockHost) MessageRead(message host.Message, dst []byte) error {
	mm := message.(*mockMessage)
	if len(dst) != len(mm.payload) {
		return errors.New("mock: length mismatch")
	}
	copy(dst, mm.payload)
	return nil
}

func (m *mockHost) MessageWrite(message host.Message, src []byte) error {
	mm := message.(*mockMessage)
	mm.payload = append(mm.payload, src...)
	return nil
}

func (m *mockHost) ConnectTokenDecode(_ host.NativeSocket, token []byte) (*host.TokenInfo, error) {
	if len(token) != host.ConnectTokenBytes {
		return nil, errors.New("mock: bad token size")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decodeErr != nil {
		return nil, m.decodeErr
	}
	return m.tokenInfo, nil
}

func (m *mockHost) ExecutorStartup() error {
	m.mu.Lock()
	m.executorStarted++
	m.mu.Unlock()
	return nil
}

func (m *mockHost) ExecutorShutdown() {
	m.mu.Lock()
	m.executorStopped++
	m.mu.Unlock()
}

func (m *mockHost) ExecutorSubmit(fn func()) error {
	m.mu.Lock()
	inline := m.inlineExecutor
	m.mu.Unlock()
	if inline {
		fn()
		return nil
	}
	go fn()
	return nil
}

var _ host.Plugin = (*mockHost)(nil)
