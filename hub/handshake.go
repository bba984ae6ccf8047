package hub

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/protocol"
	"github.com/google/uuid"
)

var (
	// ErrAuthFailed is returned when the handshake token does not match.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrLockedOut is returned for hosts that failed authentication too often.
	ErrLockedOut = errors.New("too many failed authentication attempts")

	// ErrReservedID is returned when a client claims the hub's own frame id.
	ErrReservedID = errors.New("client id is reserved")
)

// Handshake response messages.
const (
	MessageAuthenticated = "Authenticated"
	MessageAuthFailed    = "Authentication failed"
	MessageBadHandshake  = "Invalid handshake"
	MessageReservedID    = "Client id is reserved"
)

// handshake reads the first message under the handshake deadline and
// answers it. Nothing is registered here; on success the caller registers
// the returned request.
func (s *session) handshake() (protocol.AuthRequest, error) {
	h := s.hub
	if err := s.conn.SetDeadline(time.Now().Add(h.opts.HandshakeTimeout)); err != nil {
		return protocol.AuthRequest{}, fmt.Errorf("set handshake deadline: %w", err)
	}

	raw, err := s.ch.Receive()
	if err != nil {
		return protocol.AuthRequest{}, fmt.Errorf("read handshake: %w", err)
	}

	host := remoteHost(s.conn)
	req, err := protocol.ParseAuthRequest(raw)
	if err != nil {
		s.reject(host, "bad_handshake", MessageBadHandshake)
		return protocol.AuthRequest{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	if !tokenMatches(req.Token, h.opts.Token) {
		s.reject(host, "bad_token", MessageAuthFailed)
		return protocol.AuthRequest{}, fmt.Errorf("%w: wrong token", ErrAuthFailed)
	}

	h.guard.Reset(host)
	if req.ClientID == h.opts.FrameID {
		h.metrics.AuthFailed("reserved_id")
		s.log.Warn("rejecting handshake",
			logger.Field{Key: "reason", Value: "reserved_id"},
			logger.Field{Key: "client_id", Value: req.ClientID},
		)
		_ = s.ch.Send(protocol.AuthResponse{Status: protocol.StatusError, Message: MessageReservedID})
		return protocol.AuthRequest{}, fmt.Errorf("%w: %s", ErrReservedID, req.ClientID)
	}
	if req.ClientID == "" {
		req.ClientID = "anon-" + uuid.NewString()[:8]
	}

	if err := s.ch.Send(protocol.AuthResponse{Status: protocol.StatusSuccess, Message: MessageAuthenticated}); err != nil {
		return protocol.AuthRequest{}, fmt.Errorf("send handshake response: %w", err)
	}

	if err := s.conn.SetDeadline(time.Time{}); err != nil {
		return protocol.AuthRequest{}, fmt.Errorf("clear handshake deadline: %w", err)
	}

	return req, nil
}

func (s *session) reject(host, reason, message string) {
	failures := s.hub.guard.Fail(host)
	s.hub.metrics.AuthFailed(reason)
	s.log.Warn("rejecting handshake",
		logger.Field{Key: "reason", Value: reason},
		logger.Field{Key: "failures", Value: failures},
	)

	_ = s.ch.Send(protocol.AuthResponse{Status: protocol.StatusError, Message: message})
}

// tokenMatches compares in constant time. An empty expected token matches
// nothing.
func tokenMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
