// Package host declares the façade through which the bridge core talks to
// the host process: the native socket/session abstraction, message exchange,
// connect-token decoding, and the host's task executor. The host implements
// Plugin and hands it to the plugin entry; the core registers its callback
// set in return.
//
// Unless a method is documented otherwise, Plugin methods may be called from
// the core loop only; Callbacks functions may be invoked by the host from
// any of its threads.
package host

import "net/netip"

// ChannelMode selects the delivery tier of a channel.
type ChannelMode int

const (
	// ModeUnreliable delivers best-effort, unordered.
	ModeUnreliable ChannelMode = iota
	// ModeSequenced delivers best-effort but never out of order; stale
	// frames are dropped.
	ModeSequenced
	// ModeReliable delivers every frame, in order.
	ModeReliable
)

// String implements fmt.Stringer.
func (m ChannelMode) String() string {
	switch m {
	case ModeUnreliable:
		return "unreliable"
	case ModeSequenced:
		return "sequenced"
	case ModeReliable:
		return "reliable"
	default:
		return "unknown"
	}
}

// Product contract constants shared with the host.
const (
	// ConnectTokenBytes is the exact decoded size of a connect token.
	ConnectTokenBytes = 2048

	// KeyBytes is the size of the per-direction session keys in a token.
	KeyBytes = 32

	// UserDataBytes is the size of the token's opaque user data block.
	UserDataBytes = 256

	// MaxChannels bounds the per-socket channel count.
	MaxChannels = 1024
)

// NativeSocket is the host's listening socket handle, opaque to the core.
type NativeSocket interface{}

// NativeSession is the host's session handle, opaque to the core.
type NativeSession interface{}

// Message is the host's message handle, opaque to the core. A Message passed
// into a callback is valid only for the duration of the call.
type Message interface{}

// TokenInfo is the decoded content of a connect token the core cares about.
// The rest of the token stays host-side.
type TokenInfo struct {
	// ClientID identifies the authenticated peer.
	ClientID int64

	// Timeout is the negotiation deadline in seconds. Values <= 0 disable
	// the deadline.
	Timeout int32

	// ProtocolID is the host protocol the token was minted for.
	ProtocolID uint64

	// CreateTimestamp and ExpireTimestamp bound the token's validity.
	CreateTimestamp uint64
	ExpireTimestamp uint64

	// UserData is the token's opaque user block (UserDataBytes long).
	UserData []byte
}

// Callbacks is the server-side callback set the core registers with the
// host. The host invokes these from its own threads; every implementation
// hops onto the core loop before touching state.
type Callbacks struct {
	// OnUnload is invoked when the host unloads the plugin.
	OnUnload func()

	// OnSocketListening is invoked when a native socket starts listening.
	OnSocketListening func(socket NativeSocket, address netip.AddrPort)

	// OnSocketStopped is invoked when a native socket stops.
	OnSocketStopped func(socket NativeSocket)

	// OnSessionDisconnect is invoked when the host kicks a session.
	OnSessionDisconnect func(session NativeSession)

	// OnSessionGetRTT returns the session's current RTT mean and variance in
	// nanoseconds. Called from any host thread without a loop hop.
	OnSessionGetRTT func(session NativeSession) (mean, variance uint64)

	// OnSessionSetMode requests a delivery-mode change for one channel.
	OnSessionSetMode func(session NativeSession, channelIndex int, mode ChannelMode) error

	// OnSessionSend requests delivery of a message to the peer. The message
	// is valid only for the duration of the call.
	OnSessionSend func(session NativeSession, channelIndex int, message Message)
}

// Plugin is the function table the host provides to the plugin entry.
type Plugin interface {
	// Version reports the host's façade version (semver).
	Version() string

	// ConfigureCallbacks registers the core's callback set. Called once at
	// load, before any other traffic.
	ConfigureCallbacks(cb Callbacks)

	// SocketChannelCount returns the number of channels configured on the
	// native socket.
	SocketChannelCount(socket NativeSocket) int

	// SocketChannelMode returns the delivery mode of one channel.
	SocketChannelMode(socket NativeSocket, channelIndex int) ChannelMode

	// SocketTime returns the native socket's clock in nanoseconds. Safe
	// from any thread.
	SocketTime(socket NativeSocket) uint64

	// SessionCreate creates the native session for an authenticated peer.
	// Called on the host executor.
	SessionCreate(socket NativeSocket, clientID int64, address netip.AddrPort) (NativeSession, error)

	// SessionDestroy destroys a native session. Called on the host executor.
	SessionDestroy(session NativeSession)

	// SessionSetPrivate and SessionPrivate attach core state to a native
	// session handle. SessionPrivate is also called from host threads inside
	// OnSessionGetRTT.
	SessionSetPrivate(session NativeSession, private any)
	SessionPrivate(session NativeSession) any

	// SessionReceive delivers an inbound message to the host. Called on the
	// host executor.
	SessionReceive(session NativeSession, channelIndex int, message Message)

	// MessageAcquire obtains a host message to fill. Called on the host
	// executor.
	MessageAcquire() Message

	// MessageLength returns the payload length of a message. Called from host
	// threads inside OnSessionSend.
	MessageLength(message Message) int

	// MessageRead copies the message payload into dst (len(dst) bytes).
	// Called from host threads inside OnSessionSend.
	MessageRead(message Message, dst []byte) error

	// MessageWrite appends src to the message payload. Called on the host
	// executor.
	MessageWrite(message Message, src []byte) error

	// ConnectTokenDecode validates and decodes a connect token for the
	// socket. token is exactly ConnectTokenBytes long.
	ConnectTokenDecode(socket NativeSocket, token []byte) (*TokenInfo, error)

	// ExecutorStartup, ExecutorShutdown and ExecutorSubmit manage the host
	// executor servicing blocking host calls. Submit is safe from any
	// thread; the submitted function runs on a host thread.
	ExecutorStartup() error
	ExecutorShutdown()
	ExecutorSubmit(fn func()) error
}
