package hub

import (
	"context"
	"errors"
	"time"

	"github.com/cyberinferno/screenhub/frame"
	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/protocol"
	"github.com/cyberinferno/screenhub/provider"
)

// readLoop receives and dispatches messages strictly in arrival order until
// the connection ends.
func (s *session) readLoop() {
	for {
		raw, err := s.ch.Receive()
		if err != nil {
			switch {
			case s.ctx.Err() != nil:
				s.log.Debug("session closed locally")
			case errors.Is(err, frame.ErrEndOfStream):
				s.log.Debug("peer closed connection")
			case errors.Is(err, frame.ErrProtocol):
				s.log.Warn("protocol error", logger.Err(err))
			default:
				s.log.Warn("read failed", logger.Err(err))
			}
			return
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			s.log.Debug("dropping invalid message", logger.Err(err))
			continue
		}

		s.hub.metrics.MessageReceived(string(msg.Kind()))
		s.dispatch(msg)
	}
}

// dispatch applies one message. Provider failures and panics are logged and
// never end the session.
func (s *session) dispatch(msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("dispatch panic", logger.Field{Key: "panic", Value: r})
		}
	}()

	switch m := msg.(type) {
	case protocol.Screenshot:
		if err := s.hub.registry.UpdateFrame(s.ctx, s.clientID, m.Data); err != nil {
			s.log.Error("failed to cache frame", logger.Err(err))
			return
		}
		s.hub.metrics.FrameReceived(len(m.Data))

	case protocol.GetScreen:
		if s.role != protocol.RoleController {
			s.log.Debug("get_screen from non-controller ignored")
			return
		}
		s.serveScreen()

	case protocol.MouseMove:
		s.input(provider.OpMoveTo, func(ctx context.Context) error {
			return s.hub.provider.MoveTo(ctx, m.X, m.Y)
		})

	case protocol.MouseClick:
		s.input(provider.OpClick, func(ctx context.Context) error {
			return s.hub.provider.Click(ctx, m.X, m.Y, m.Button)
		})

	case protocol.KeyPress:
		s.input(provider.OpPressKey, func(ctx context.Context) error {
			return s.hub.provider.PressKey(ctx, m.Key)
		})

	case protocol.Status:
		s.log.Info("client status", logger.Field{Key: "status", Value: m.Status})

	case protocol.Screen:
		s.log.Debug("unexpected screen message ignored")

	case protocol.Unknown:
		s.log.Debug("ignoring unknown message", logger.Field{Key: "type", Value: m.Type})
	}
}

func (s *session) serveScreen() {
	ctx, cancel := context.WithTimeout(s.ctx, s.hub.opts.ProviderTimeout)
	defer cancel()

	start := time.Now()
	blob, err := s.hub.provider.Capture(ctx)
	s.hub.metrics.CaptureDone(start)
	if err != nil {
		s.providerFailed(provider.OpCapture, err)
		return
	}

	if err := s.hub.registry.UpdateFrame(s.ctx, s.hub.opts.FrameID, blob); err != nil {
		s.log.Warn("failed to cache captured frame", logger.Err(err))
	}

	reply := protocol.NewScreen(blob, time.Now().Format(time.RFC3339))
	if err := s.ch.Send(reply); err != nil {
		s.log.Warn("failed to send screen", logger.Err(err))
	}
}

func (s *session) input(op provider.Op, call func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.hub.opts.ProviderTimeout)
	defer cancel()

	if err := call(ctx); err != nil {
		s.providerFailed(op, err)
	}
}

func (s *session) providerFailed(op provider.Op, err error) {
	s.hub.metrics.ProviderError(string(op))
	if errors.Is(err, provider.ErrUnavailable) {
		s.log.Debug("provider unavailable", logger.Field{Key: "op", Value: string(op)})
		return
	}
	s.log.Error("provider call failed", logger.Field{Key: "op", Value: string(op)}, logger.Err(err))
}
