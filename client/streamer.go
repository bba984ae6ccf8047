package client

import (
	"context"
	"errors"
	"time"

	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/protocol"
	"github.com/cyberinferno/screenhub/provider"
)

// TimestampLayout formats screenshot timestamps.
const TimestampLayout = "2006-01-02T15:04:05"

// Streamer pushes a capture to the hub every interval while the client is
// connected. Ticks that find the client disconnected are skipped.
type Streamer struct {
	client   *Client
	screen   provider.ScreenProvider
	interval time.Duration
	logger   logger.Logger
	now      func() time.Time
}

// NewStreamer creates a Streamer. A non-positive interval defaults to two
// seconds.
func NewStreamer(c *Client, screen provider.ScreenProvider, interval time.Duration, log logger.Logger) *Streamer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Streamer{client: c, screen: screen, interval: interval, logger: log, now: time.Now}
}

// Run streams until ctx is cancelled. It returns nil on cancellation.
func (s *Streamer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if s.client.IsConnected() {
			if err := s.StreamOnce(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
				s.logger.Warn("screen stream failed", logger.Err(err))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// StreamOnce captures one frame and sends it.
func (s *Streamer) StreamOnce(ctx context.Context) error {
	blob, err := s.screen.Capture(ctx)
	if err != nil {
		return err
	}

	msg := protocol.NewScreenshot(s.client.ClientID(), blob, s.now().Format(TimestampLayout))
	return s.client.Send(msg)
}
