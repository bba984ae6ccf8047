package hub

import (
	"context"
	"net"
	"sync"

	"github.com/cyberinferno/screenhub/frame"
	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/protocol"
)

// session is one accepted connection. It is owned by the goroutine running
// Handle; other goroutines only call Close.
type session struct {
	id     uint32
	conn   net.Conn
	ch     *frame.Channel
	hub    *Hub
	remote string
	log    logger.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	clientID string
	role     protocol.Role
}

func (s *session) ID() uint32 { return s.id }

// Close cancels in-flight provider calls and closes the connection, which
// unblocks a pending Receive.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.conn.Close()
	})
	return err
}

// Handle runs the handshake and then the read loop. The session is released
// from the registry and the connection closed on every exit path.
func (s *session) Handle() {
	defer s.Close()

	req, err := s.handshake()
	if err != nil {
		s.log.Warn("handshake failed", logger.Err(err))
		return
	}

	s.clientID = req.ClientID
	s.role = req.Role
	s.log = s.log.With(logger.Field{Key: "client_id", Value: s.clientID})

	reg := s.hub.registry
	reg.Register(s.clientID, s.remote, s.role, s)
	s.hub.metrics.SetLiveSessions(reg.Len())
	s.log.Info("client connected", logger.Field{Key: "role", Value: string(s.role)})

	defer func() {
		if reg.Release(s.clientID, s) {
			s.log.Info("client disconnected")
		}
		s.hub.metrics.SetLiveSessions(reg.Len())
	}()

	s.readLoop()
}
