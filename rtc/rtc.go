// Package rtc is the bridge's façade over its WebRTC and WebSocket
// providers (pion/webrtc and gorilla/websocket). The core consumes this
// surface only: signaling servers and clients, peer connections, data
// channels and refcounted binary buffers.
//
// Every callback in Callbacks may fire on a foreign goroutine (a pion
// internal goroutine or a connection pump). Consumers must hop onto their
// own loop before touching state.
package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/pomelo-net/webrtc-plugin/logger"
)

// PeerConnectionState mirrors the connection states the core reacts to.
type PeerConnectionState int

const (
	PeerConnectionStateNew PeerConnectionState = iota
	PeerConnectionStateConnecting
	PeerConnectionStateConnected
	PeerConnectionStateDisconnected
	PeerConnectionStateFailed
	PeerConnectionStateClosed
)

// String implements fmt.Stringer.
func (s PeerConnectionState) String() string {
	switch s {
	case PeerConnectionStateNew:
		return "new"
	case PeerConnectionStateConnecting:
		return "connecting"
	case PeerConnectionStateConnected:
		return "connected"
	case PeerConnectionStateDisconnected:
		return "disconnected"
	case PeerConnectionStateFailed:
		return "failed"
	case PeerConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Callbacks is the callback table installed once at context creation.
// Unset entries are ignored.
type Callbacks struct {
	// WSSClient fires when a signaling server accepts a client, before the
	// client's pumps start.
	WSSClient func(server *WSServer, client *WSClient)

	WSOpen    func(client *WSClient)
	WSClosed  func(client *WSClient)
	WSError   func(client *WSClient, err error)
	WSMessage func(client *WSClient, message *Buffer)

	PCLocalCandidate func(pc *PeerConnection, candidate, mid string)
	PCStateChange    func(pc *PeerConnection, state PeerConnectionState)
	PCDataChannel    func(pc *PeerConnection, dc *DataChannel)

	DCOpen    func(dc *DataChannel)
	DCClosed  func(dc *DataChannel)
	DCError   func(dc *DataChannel, err error)
	DCMessage func(dc *DataChannel, message *Buffer)
}

// Options configure a Context.
type Options struct {
	Callbacks Callbacks

	// ICEServers are STUN/TURN URLs applied to every peer connection.
	ICEServers []string

	// IncludeLoopbackCandidates gathers loopback ICE candidates, for
	// single-machine development and tests.
	IncludeLoopbackCandidates bool

	// Logger overrides the package logger when set.
	Logger *zap.SugaredLogger
}

// Context owns the shared provider state: the callback table, the pion API
// with its setting engine, the ICE configuration and the buffer pool.
type Context struct {
	callbacks  Callbacks
	iceServers []string
	api        *webrtc.API
	log        *zap.SugaredLogger

	bufferPool sync.Pool

	mu   sync.Mutex
	data any
}

// NewContext creates a façade context.
func NewContext(opts Options) *Context {
	log := opts.Logger
	if log == nil {
		log = logger.Named("rtc")
	}

	settings := webrtc.SettingEngine{}
	if opts.IncludeLoopbackCandidates {
		settings.SetIncludeLoopbackCandidate(true)
	}

	c := &Context{
		callbacks:  opts.Callbacks,
		iceServers: opts.ICEServers,
		api:        webrtc.NewAPI(webrtc.WithSettingEngine(settings)),
		log:        log,
	}
	c.bufferPool.New = func() any { return &Buffer{ctx: c} }
	return c
}

// SetData attaches consumer state to the context.
func (c *Context) SetData(data any) {
	c.mu.Lock()
	c.data = data
	c.mu.Unlock()
}

// Data returns the attached consumer state.
func (c *Context) Data() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Destroy drops the context. Servers and connections must be closed first.
func (c *Context) Destroy() {
	c.SetData(nil)
}
