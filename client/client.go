// Package client connects to a screen hub, authenticates, and exchanges
// messages with it. It reports connection state changes, inbound messages
// and errors through registered handlers and can reconnect on its own.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/screenhub/frame"
	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/protocol"
)

var (
	// ErrNotConnected is returned by Send and RequestScreen while the client
	// has no authenticated connection.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("client is closed")

	// ErrRejected is returned when the hub answers the handshake with an error.
	ErrRejected = errors.New("hub rejected handshake")
)

// ConnectionState represents the current state of the hub connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected and not attempting to connect
	Connecting                          // Dial or handshake in progress
	Connected                           // Authenticated
	Reconnecting                        // Waiting to reconnect after a failure
	Closed                              // Closed for good
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is emitted when the connection state changes.
type ConnectionStateEvent struct {
	State     ConnectionState
	Address   string
	Timestamp time.Time
	Error     error
}

// MessageEvent is emitted for every message received from the hub.
type MessageEvent struct {
	Message   protocol.Message
	Timestamp time.Time
}

// ErrorEvent is emitted when a read, write or connection error occurs.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

// Handlers are invoked from their own goroutines and must be safe for
// concurrent use.
type (
	ConnectionStateHandler func(event ConnectionStateEvent)
	MessageHandler         func(event MessageEvent)
	ErrorHandler           func(event ErrorEvent)
)

// Config holds the client settings.
type Config struct {
	// Address is the hub's "host:port".
	Address  string
	Token    string
	ClientID string
	Role     protocol.Role

	AutoReconnect     bool
	ReconnectInterval time.Duration

	// ConnectionTimeout bounds the dial, including any TLS handshake.
	ConnectionTimeout time.Duration
	// HandshakeTimeout bounds the authentication exchange.
	HandshakeTimeout  time.Duration
	// WriteTimeout bounds a single Send; 0 means no timeout.
	WriteTimeout      time.Duration
	MaxFrameSize      uint32

	// TLS enables TLS when non-nil.
	TLS            *tls.Config
	// AllowPlaintext retries without TLS when the TLS dial fails. It has no
	// effect when TLS is nil.
	AllowPlaintext bool
}

// DefaultConfig returns a Config with defaults for the given hub address.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		Role:              protocol.RoleSource,
		ReconnectInterval: 5 * time.Second,
		ConnectionTimeout: 10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxFrameSize:      frame.DefaultMaxSize,
	}
}

// Client is a hub connection. It is safe for concurrent use.
type Client struct {
	config Config
	logger logger.Logger

	conn  net.Conn
	ch    *frame.Channel
	state ConnectionState

	onConnectionState ConnectionStateHandler
	onMessage         MessageHandler
	onError           ErrorHandler

	screens chan protocol.Screen
	reqMu   sync.Mutex

	mu            sync.RWMutex
	stopChan      chan struct{}
	reconnectChan chan struct{}
	reconnectOnce sync.Once
	wg            sync.WaitGroup
	closed        bool
	reconnecting  bool
}

// New creates a client in the Disconnected state. Call Connect to start.
func New(config Config, log logger.Logger) *Client {
	if config.Role == "" {
		config.Role = protocol.RoleSource
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = frame.DefaultMaxSize
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		config:        config,
		logger:        log.With(logger.Field{Key: "hub", Value: config.Address}),
		state:         Disconnected,
		screens:       make(chan protocol.Screen, 1),
		stopChan:      make(chan struct{}),
		reconnectChan: make(chan struct{}, 1),
	}
}

// OnConnectionState registers the handler for state changes, replacing any
// previous one.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnMessage registers the handler for inbound messages.
func (c *Client) OnMessage(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// OnError registers the handler for errors.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the hub and authenticates. With AutoReconnect a failed
// attempt is returned and then retried in the background, unless the hub
// rejected the handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.mu.Unlock()

	if c.config.AutoReconnect {
		c.reconnectOnce.Do(func() {
			c.wg.Add(1)
			go c.reconnectHandler()
		})
	}

	err := c.connect(ctx)
	if err != nil && !errors.Is(err, ErrRejected) {
		c.triggerReconnect()
	}
	return err
}

// Disconnect closes the current connection. Connect may be called again.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Disconnected || c.state == Closed {
		return nil
	}

	return c.disconnectLocked()
}

// Close shuts the client down and waits for its goroutines. It is
// idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.ch = nil
	}
	c.mu.Unlock()

	close(c.stopChan)
	c.wg.Wait()

	c.setState(Closed, nil)
	return nil
}

// Send encodes msg and writes it as one frame.
func (c *Client) Send(msg any) error {
	c.mu.RLock()
	conn, ch, state := c.conn, c.ch, c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
		defer func() {
			_ = conn.SetWriteDeadline(time.Time{})
		}()
	}

	if err := ch.Send(msg); err != nil {
		c.emitError(err)
		c.triggerReconnect()
		return err
	}

	return nil
}

// RequestScreen asks the hub for its own screen and waits for the reply.
// Only controller connections get an answer; ctx bounds the wait.
func (c *Client) RequestScreen(ctx context.Context) (protocol.Screen, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	select {
	case <-c.screens:
	default:
	}

	if err := c.Send(protocol.NewGetScreen()); err != nil {
		return protocol.Screen{}, err
	}

	select {
	case screen := <-c.screens:
		return screen, nil
	case <-ctx.Done():
		return protocol.Screen{}, ctx.Err()
	case <-c.stopChan:
		return protocol.Screen{}, ErrClosed
	}
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client holds an authenticated connection.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// ClientID returns the configured client id.
func (c *Client) ClientID() string {
	return c.config.ClientID
}

func (c *Client) connect(ctx context.Context) error {
	c.setState(Connecting, nil)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(Disconnected, err)
		c.emitError(err)
		return err
	}

	ch := frame.NewChannel(conn, c.config.MaxFrameSize)
	if err := c.handshake(conn, ch); err != nil {
		_ = conn.Close()
		c.setState(Disconnected, err)
		c.emitError(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn, c.ch = conn, ch
	c.mu.Unlock()

	c.setState(Connected, nil)
	c.logger.Info("connected to hub", logger.Field{Key: "client_id", Value: c.config.ClientID})

	c.wg.Add(1)
	go c.readLoop(conn, ch)

	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: c.config.ConnectionTimeout}
	if c.config.TLS == nil {
		return d.DialContext(ctx, "tcp", c.config.Address)
	}

	td := &tls.Dialer{NetDialer: d, Config: c.config.TLS}
	conn, err := td.DialContext(ctx, "tcp", c.config.Address)
	if err == nil {
		return conn, nil
	}
	if !c.config.AllowPlaintext {
		return nil, fmt.Errorf("tls dial: %w", err)
	}

	c.logger.Warn("TLS dial failed, using plaintext", logger.Err(err))
	return d.DialContext(ctx, "tcp", c.config.Address)
}

func (c *Client) handshake(conn net.Conn, ch *frame.Channel) error {
	if c.config.HandshakeTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.config.HandshakeTimeout)); err != nil {
			return err
		}
	}

	req := protocol.AuthRequest{Token: c.config.Token, ClientID: c.config.ClientID, Role: c.config.Role}
	if err := ch.Send(req); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}

	var resp protocol.AuthResponse
	if err := ch.ReceiveInto(&resp); err != nil {
		return fmt.Errorf("read handshake response: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}

	return conn.SetDeadline(time.Time{})
}

func (c *Client) disconnectLocked() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn, c.ch = nil, nil
	c.state = Disconnected
	c.emitConnectionState(c.onConnectionState, Disconnected, nil)
	return err
}

// readLoop owns reads on conn until it fails or is replaced.
func (c *Client) readLoop(conn net.Conn, ch *frame.Channel) {
	defer c.wg.Done()

	for {
		raw, err := ch.Receive()
		if err != nil {
			c.mu.Lock()
			current := c.conn == conn && !c.closed
			if current {
				_ = c.disconnectLocked()
			}
			c.mu.Unlock()

			if current {
				c.emitError(err)
				c.triggerReconnect()
			}
			return
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Debug("dropping invalid message from hub", logger.Err(err))
			continue
		}

		if screen, ok := msg.(protocol.Screen); ok {
			select {
			case c.screens <- screen:
			default:
			}
		}

		c.emitMessage(msg)
	}
}

func (c *Client) reconnectHandler() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case <-c.reconnectChan:
		}

		c.mu.Lock()
		if c.reconnecting || c.state == Connected {
			c.mu.Unlock()
			continue
		}
		c.reconnecting = true
		c.mu.Unlock()

		c.setState(Reconnecting, nil)

		select {
		case <-c.stopChan:
			return
		case <-time.After(c.config.ReconnectInterval):
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-c.stopChan:
				cancel()
			case <-ctx.Done():
			}
		}()
		err := c.connect(ctx)
		cancel()

		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()

		switch {
		case err == nil, c.isClosed():
		case errors.Is(err, ErrRejected):
			c.logger.Error("hub rejected reconnect, giving up", logger.Err(err))
		default:
			c.logger.Warn("reconnect failed", logger.Err(err))
			c.triggerReconnect()
		}
	}
}

func (c *Client) triggerReconnect() {
	if !c.config.AutoReconnect || c.isClosed() {
		return
	}

	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	handler := c.onConnectionState
	c.mu.Unlock()

	c.emitConnectionState(handler, state, err)
}

func (c *Client) emitConnectionState(handler ConnectionStateHandler, state ConnectionState, err error) {
	if handler == nil {
		return
	}

	event := ConnectionStateEvent{
		State:     state,
		Address:   c.config.Address,
		Timestamp: time.Now(),
		Error:     err,
	}
	go handler(event)
}

func (c *Client) emitMessage(msg protocol.Message) {
	c.mu.RLock()
	handler := c.onMessage
	c.mu.RUnlock()

	if handler != nil {
		go handler(MessageEvent{Message: msg, Timestamp: time.Now()})
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		go handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
