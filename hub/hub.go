// Package hub is the session side of the screen hub: it authenticates each
// TCP connection, registers it, and dispatches its messages to the registry
// and the screen/input provider.
package hub

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/cyberinferno/screenhub/frame"
	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/metrics"
	"github.com/cyberinferno/screenhub/provider"
	"github.com/cyberinferno/screenhub/registry"
	"github.com/cyberinferno/screenhub/tcpserver"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultProviderTimeout  = 10 * time.Second
	DefaultFrameID          = "hub"
	DefaultLockoutWindow    = 5 * time.Minute
)

// Options configures a Hub. Zero values select the defaults above.
type Options struct {
	Addr             string
	TLSConfig        *tls.Config
	Token            string
	HandshakeTimeout time.Duration
	ProviderTimeout  time.Duration
	MaxFrameSize     uint32

	// FrameID is the client id under which the hub caches frames it captures
	// itself in answer to get_screen.
	FrameID string

	// MaxAuthFailures per remote host before it is refused for
	// LockoutWindow. 0 disables the lockout.
	MaxAuthFailures int
	LockoutWindow   time.Duration
}

func (o *Options) applyDefaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = DefaultProviderTimeout
	}
	if o.MaxFrameSize == 0 {
		o.MaxFrameSize = frame.DefaultMaxSize
	}
	if o.FrameID == "" {
		o.FrameID = DefaultFrameID
	}
	if o.LockoutWindow <= 0 {
		o.LockoutWindow = DefaultLockoutWindow
	}
}

// Hub owns the TCP acceptor and shares the registry with the dashboard.
type Hub struct {
	opts     Options
	registry *registry.Registry
	provider provider.Provider
	metrics  *metrics.Metrics
	logger   logger.Logger
	guard    *Guard
	server   *tcpserver.TCPServer
}

// New creates a hub. provider may be nil for a hub without local screen or
// input, and m may be nil to disable metrics.
func New(opts Options, reg *registry.Registry, p provider.Provider, m *metrics.Metrics, log logger.Logger) *Hub {
	opts.applyDefaults()
	if p == nil {
		p = provider.Noop{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	h := &Hub{
		opts:     opts,
		registry: reg,
		provider: p,
		metrics:  m,
		logger:   log,
		guard:    NewGuard(opts.MaxAuthFailures, opts.LockoutWindow),
	}
	h.server = tcpserver.New("hub", opts.Addr, opts.TLSConfig, h.newSession, log)
	h.server.Accept = h.accept

	return h
}

// Start binds the listener and begins accepting in the background.
func (h *Hub) Start() error {
	if err := h.server.Start(); err != nil {
		return err
	}

	h.registry.SetOnline(true)
	return nil
}

// Stop closes the listener and every session, and waits until each session
// has deregistered.
func (h *Hub) Stop() {
	h.server.Stop()
	h.server.Wait()
	h.registry.SetOnline(false)
	h.metrics.SetLiveSessions(h.registry.Len())
}

// Serve runs the hub until ctx is cancelled. Listen errors are returned
// immediately.
func (h *Hub) Serve(ctx context.Context) error {
	if err := h.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	h.Stop()
	return nil
}

// Addr returns the bound listener address.
func (h *Hub) Addr() string {
	return h.server.BoundAddr()
}

func (h *Hub) accept(conn net.Conn) bool {
	host := remoteHost(conn)
	if err := h.guard.Check(host); err != nil {
		h.logger.Warn("refusing connection", logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()}, logger.Err(err))
		h.metrics.AuthFailed("locked_out")
		return false
	}

	h.metrics.ConnectionAccepted()
	return true
}

func (h *Hub) newSession(id uint32, conn net.Conn) tcpserver.TCPServerSession {
	ctx, cancel := context.WithCancel(context.Background())

	return &session{
		id:     id,
		conn:   conn,
		ch:     frame.NewChannel(conn, h.opts.MaxFrameSize),
		hub:    h,
		remote: conn.RemoteAddr().String(),
		ctx:    ctx,
		cancel: cancel,
		log: h.logger.With(
			logger.Field{Key: "conn_id", Value: id},
			logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()},
		),
	}
}

func remoteHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
