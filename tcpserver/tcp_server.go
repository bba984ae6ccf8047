// Package tcpserver accepts TCP connections, optionally over TLS, and runs
// one session goroutine per connection.
package tcpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/screenhub/idgenerator"
	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/safemap"
)

// NewSessionFunc creates the session for an accepted connection. It receives
// the assigned connection ID and the connection, already TLS-wrapped when the
// server has a TLS config.
type NewSessionFunc func(id uint32, conn net.Conn) TCPServerSession

// AcceptFunc decides whether a freshly accepted connection may proceed. A
// false return closes the connection before any session is created.
type AcceptFunc func(conn net.Conn) bool

// TCPServer accepts connections and delegates each one to a session created
// by NewSession. Live sessions are kept by ID so Stop can close them all.
type TCPServer struct {
	Logger      logger.Logger
	Name        string
	Addr        string
	TLSConfig   *tls.Config
	Listener    net.Listener
	Sessions    *safemap.SafeMap[uint32, TCPServerSession]
	Running     atomic.Bool
	NewSession  NewSessionFunc
	Accept      AcceptFunc
	IdGenerator *idgenerator.IdGenerator

	wg      sync.WaitGroup
	stopped chan struct{}
	mu      sync.Mutex
}

// New creates a server. tlsConfig may be nil for plaintext.
//
// Parameters:
//   - name: Name used in log messages
//   - addr: Listen address, e.g. ":9999"
//   - tlsConfig: TLS configuration, or nil
//   - newSession: Factory for per-connection sessions
//   - log: Logger
//
// Returns:
//   - A TCPServer ready for Start or Serve
func New(name, addr string, tlsConfig *tls.Config, newSession NewSessionFunc, log logger.Logger) *TCPServer {
	return &TCPServer{
		Logger:      log,
		Name:        name,
		Addr:        addr,
		TLSConfig:   tlsConfig,
		Sessions:    safemap.NewSafeMap[uint32, TCPServerSession](),
		NewSession:  newSession,
		IdGenerator: idgenerator.NewIdGenerator(0),
	}
}

// Start binds Addr and runs the accept loop in a goroutine.
//
// Returns:
//   - An error if the server is already running or if listening fails
func (s *TCPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Running.Load() {
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Err(err))
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	if s.TLSConfig != nil {
		ln = tls.NewListener(ln, s.TLSConfig)
	}

	s.Listener = ln
	s.stopped = make(chan struct{})
	s.Running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name),
		logger.Field{Key: "addr", Value: ln.Addr().String()},
		logger.Field{Key: "tls", Value: s.TLSConfig != nil},
	)
	go s.AcceptLoop()

	return nil
}

// Serve starts the server and blocks until ctx is cancelled or Stop is
// called, then stops it and waits for every session to finish.
func (s *TCPServer) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		s.Stop()
	case <-stopped:
	}

	s.Wait()
	return nil
}

// Stop closes the listener and every live session. Safe to call when the
// server is not running.
func (s *TCPServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Running.Load() {
		return
	}

	s.Running.Store(false)
	if s.Listener != nil {
		_ = s.Listener.Close()
	}

	s.Sessions.Range(func(_ uint32, session TCPServerSession) bool {
		_ = session.Close()
		return true
	})
	close(s.stopped)

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// Wait blocks until every session goroutine has returned.
func (s *TCPServer) Wait() {
	s.wg.Wait()
}

// BoundAddr returns the listener address, useful when Addr ends in ":0".
func (s *TCPServer) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Listener == nil {
		return ""
	}
	return s.Listener.Addr().String()
}

// AddSession stores a session under id.
func (s *TCPServer) AddSession(id uint32, session TCPServerSession) {
	s.Sessions.Store(id, session)
}

// RemoveSession removes the session with the given id.
func (s *TCPServer) RemoveSession(id uint32) {
	s.Sessions.Delete(id)
}

// AcceptLoop accepts connections until the listener is closed. Each
// connection gets an ID from IdGenerator and a session whose Handle runs in
// its own goroutine.
func (s *TCPServer) AcceptLoop() {
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if !s.Running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Err(err))
			continue
		}

		if s.Accept != nil && !s.Accept(conn) {
			_ = conn.Close()
			continue
		}

		id := s.IdGenerator.Next()
		session := s.NewSession(id, conn)

		// Registration happens under mu so Stop either sees this session or
		// runs before it and the connection is dropped here.
		s.mu.Lock()
		if !s.Running.Load() {
			s.mu.Unlock()
			_ = session.Close()
			return
		}
		s.AddSession(id, session)
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			defer s.RemoveSession(id)
			session.Handle()
		}()
	}
}

// LoadTLSConfig builds a server TLS config from a PEM certificate and key.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
