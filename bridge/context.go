// Package bridge implements the core of the WebRTC bridge plugin: the
// cooperative loop that owns all state, and the pooled Socket/Session/
// Channel entities that carry each browser peer from WebSocket accept
// through authentication, negotiation and data-channel establishment onto
// the host's native session abstraction.
//
// Concurrency model: one loop goroutine owns every mutation. Callbacks from
// the WebRTC stack and from host threads capture their arguments, submit a
// task and return; pointer-shaped arguments with intricate lifetimes (rtc
// buffers) are ref-bumped before the hop and unref'd by the task.
package bridge

import (
	"bytes"
	"time"

	"go.uber.org/zap"

	"github.com/pomelo-net/webrtc-plugin/config"
	"github.com/pomelo-net/webrtc-plugin/errors"
	"github.com/pomelo-net/webrtc-plugin/host"
	"github.com/pomelo-net/webrtc-plugin/logger"
	"github.com/pomelo-net/webrtc-plugin/pool"
	"github.com/pomelo-net/webrtc-plugin/rtc"
	"github.com/pomelo-net/webrtc-plugin/rtt"
	"github.com/pomelo-net/webrtc-plugin/task"
)

// startTime anchors the monotonic clock used for RTT measurements.
var startTime = time.Now()

// nanotime returns monotonic nanoseconds since plugin start.
func nanotime() uint64 {
	return uint64(time.Since(startTime))
}

// Context is the per-plugin-instance singleton: the loop, the entity pools
// and the native-socket mapping.
type Context struct {
	hostPlugin host.Plugin
	cfg        *config.Config
	log        *zap.SugaredLogger

	dispatcher *task.Dispatcher
	rtcContext *rtc.Context

	socketPool      *pool.Pool[Socket]
	sessionPool     *pool.Pool[Session]
	channelPool     *pool.Pool[Channel]
	recvCommandPool *pool.Pool[recvCommand]
	builderPool     *pool.Pool[bytes.Buffer]

	// Loop-only state.
	sockets        map[host.NativeSocket]*Socket
	runningSockets int
}

// NewContext creates the core context, wires the provider callback table and
// registers the server-side callback set with the host.
func NewContext(hostPlugin host.Plugin, cfg *config.Config) (*Context, error) {
	if hostPlugin == nil {
		return nil, errors.New("bridge: host plugin is required")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx := &Context{
		hostPlugin: hostPlugin,
		cfg:        cfg,
		log:        logger.Named("bridge"),
		sockets:    make(map[host.NativeSocket]*Socket),
	}

	ctx.rtcContext = rtc.NewContext(rtc.Options{
		ICEServers:                cfg.ICEServers,
		IncludeLoopbackCandidates: cfg.ICEIncludeLoopback,
		Callbacks: rtc.Callbacks{
			WSSClient: ctx.wssOnClient,

			WSClosed:  ctx.wsOnClosed,
			WSError:   ctx.wsOnError,
			WSMessage: ctx.wsOnMessage,

			PCLocalCandidate: ctx.pcOnLocalCandidate,
			PCStateChange:    ctx.pcOnStateChange,
			PCDataChannel:    ctx.pcOnDataChannel,

			DCOpen:    ctx.dcOnOpen,
			DCClosed:  ctx.dcOnClosed,
			DCError:   ctx.dcOnError,
			DCMessage: ctx.dcOnMessage,
		},
	})
	ctx.rtcContext.SetData(ctx)

	ctx.socketPool = pool.New(pool.Options[Socket]{
		Synchronized: true,
		Hooks: pool.Hooks[Socket]{
			OnAlloc: func(s *Socket) error {
				s.ctx = ctx
				s.sessions = make(map[*Session]struct{})
				return nil
			},
			OnFree: func(s *Socket) { s.ctx = nil },
		},
	})
	ctx.sessionPool = pool.New(pool.Options[Session]{
		Synchronized: true,
		Hooks: pool.Hooks[Session]{
			OnAlloc: func(s *Session) error {
				s.ctx = ctx
				s.rtt = rtt.NewCalculator()
				return nil
			},
			OnFree: func(s *Session) { s.ctx = nil },
		},
	})
	ctx.channelPool = pool.New(pool.Options[Channel]{
		Synchronized: true,
		Hooks: pool.Hooks[Channel]{
			OnAlloc: func(c *Channel) error {
				c.ctx = ctx
				return nil
			},
			OnFree: func(c *Channel) { c.ctx = nil },
		},
	})
	ctx.recvCommandPool = pool.New(pool.Options[recvCommand]{
		Synchronized:    true,
		ZeroInitialized: true,
	})
	ctx.builderPool = pool.New(pool.Options[bytes.Buffer]{
		Hooks: pool.Hooks[bytes.Buffer]{
			OnAcquire: func(b *bytes.Buffer) error {
				b.Reset()
				return nil
			},
		},
	})

	ctx.dispatcher = task.NewDispatcher(task.Options{Workers: cfg.Workers})

	hostPlugin.ConfigureCallbacks(host.Callbacks{
		OnUnload:            ctx.onUnload,
		OnSocketListening:   ctx.hostOnSocketListening,
		OnSocketStopped:     ctx.hostOnSocketStopped,
		OnSessionDisconnect: ctx.hostOnSessionDisconnect,
		OnSessionGetRTT:     ctx.hostOnSessionGetRTT,
		OnSessionSetMode:    ctx.hostOnSessionSetMode,
		OnSessionSend:       ctx.hostOnSessionSend,
	})

	return ctx, nil
}

// Destroy shuts the loop down and releases the pools. All sockets must have
// been closed (the host stops them before unloading).
func (ctx *Context) Destroy() {
	ctx.dispatcher.Shutdown()
	ctx.rtcContext.Destroy()

	ctx.socketPool.Destroy()
	ctx.sessionPool.Destroy()
	ctx.channelPool.Destroy()
	ctx.recvCommandPool.Destroy()
	ctx.builderPool.Destroy()
}

// onUnload runs on a host thread when the plugin is being unloaded.
func (ctx *Context) onUnload() {
	ctx.Destroy()
}

// submit enqueues fn on the loop. Returns nil if the loop has shut down or
// the task pool is exhausted; callers compensate references they took.
func (ctx *Context) submit(fn func()) *task.Task {
	return ctx.dispatcher.Submit(fn)
}

// attachSocket accounts a socket going live. The first one starts the host
// executor. Loop-only.
func (ctx *Context) attachSocket() error {
	ctx.runningSockets++
	if ctx.runningSockets == 1 {
		if err := ctx.hostPlugin.ExecutorStartup(); err != nil {
			ctx.runningSockets--
			return errors.Wrap(err, "host executor startup failed")
		}
	}
	return nil
}

// detachSocket accounts a socket gone. The last one requests host executor
// shutdown. Loop-only.
func (ctx *Context) detachSocket() {
	ctx.runningSockets--
	if ctx.runningSockets == 0 {
		ctx.hostPlugin.ExecutorShutdown()
	}
}

// acquireBuilder takes a pooled frame builder; release with releaseBuilder.
func (ctx *Context) acquireBuilder() *bytes.Buffer {
	return ctx.builderPool.Acquire()
}

func (ctx *Context) releaseBuilder(b *bytes.Buffer) {
	ctx.builderPool.Release(b)
}
