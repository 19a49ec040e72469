package rtc

import (
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pomelo-net/webrtc-plugin/errors"
)

// WSServerOptions configure a signaling WebSocket server.
type WSServerOptions struct {
	Context *Context

	// Port to bind. The native socket uses the same port on UDP; sharing the
	// number across protocols is the product contract.
	Port int

	// TLSCertFile and TLSKeyFile enable wss:// when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// MaxMessageSize caps one inbound frame. Zero means the gorilla default.
	MaxMessageSize int64

	// Data is the consumer state attached to the server.
	Data any
}

// WSServer accepts signaling clients. Each accepted connection fires the
// context's WSSClient callback and then runs its own read/write pumps.
type WSServer struct {
	ctx  *Context
	opts WSServerOptions

	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	data    any
	clients map[*WSClient]struct{}
	closed  bool

	pumps sync.WaitGroup
}

// NewWSServer binds the port and starts accepting. Returns an error when the
// port cannot be bound.
func NewWSServer(opts WSServerOptions) (*WSServer, error) {
	if opts.Context == nil {
		return nil, errors.New("rtc: WSServer requires a context")
	}

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(opts.Port))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to bind signaling port %d", opts.Port)
	}

	s := &WSServer{
		ctx:      opts.Context,
		opts:     opts,
		listener: listener,
		data:     opts.Data,
		clients:  make(map[*WSClient]struct{}),
		upgrader: websocket.Upgrader{
			// Browser peers connect cross-origin from game pages.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.server = &http.Server{Handler: mux}

	s.pumps.Add(1)
	go s.serve()
	return s, nil
}

func (s *WSServer) serve() {
	defer s.pumps.Done()
	var err error
	if s.opts.TLSCertFile != "" && s.opts.TLSKeyFile != "" {
		err = s.server.ServeTLS(s.listener, s.opts.TLSCertFile, s.opts.TLSKeyFile)
	} else {
		err = s.server.Serve(s.listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.ctx.log.Warnw("signaling server exited", "error", err)
	}
}

func (s *WSServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.ctx.log.Debugw("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	client := newWSClient(s, conn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	// Accepted callback first, then open, then the pumps: the consumer's
	// loop sees accept before any traffic from this client.
	if cb := s.ctx.callbacks.WSSClient; cb != nil {
		cb(s, client)
	}
	if cb := s.ctx.callbacks.WSOpen; cb != nil {
		cb(client)
	}
	client.start()
}

func (s *WSServer) removeClient(c *WSClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// Addr returns the bound listen address (useful when Port was 0).
func (s *WSServer) Addr() net.Addr {
	return s.listener.Addr()
}

// SetData attaches consumer state to the server.
func (s *WSServer) SetData(data any) {
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

// Data returns the attached consumer state.
func (s *WSServer) Data() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Close stops accepting, closes every live client and blocks until all pumps
// have exited. Consumers dispatch this to a worker; it must not run on the
// loop.
func (s *WSServer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	clients := make([]*WSClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	s.server.Close()
	for _, c := range clients {
		c.Close()
	}
	s.pumps.Wait()
}

// Destroy releases the server after Close.
func (s *WSServer) Destroy() {
	s.SetData(nil)
}
