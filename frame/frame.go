// Package frame implements the length-prefixed JSON framing used on every
// hub connection: a 4-byte big-endian payload length followed by the UTF-8
// JSON payload.
package frame

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// HeaderSize is the size of the length prefix in bytes.
const HeaderSize = 4

// DefaultMaxSize bounds a single payload when no explicit limit is given.
const DefaultMaxSize uint32 = 64 << 20

var (
	// ErrEndOfStream is returned when the peer closed cleanly between frames.
	ErrEndOfStream = errors.New("end of stream")

	// ErrProtocol is returned for truncated frames, oversized frames and
	// payloads that are not valid JSON.
	ErrProtocol = errors.New("protocol error")

	// ErrFrameTooLarge is returned when the announced length exceeds the limit.
	ErrFrameTooLarge = fmt.Errorf("%w: frame exceeds maximum size", ErrProtocol)
)

// WriteRaw writes payload prefixed with its length. Header and payload go out
// in a single Write so concurrent writers guarded by one mutex never
// interleave partial frames.
func WriteRaw(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return ErrFrameTooLarge
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// ReadRaw reads one frame and returns its payload without interpreting it.
//
// Parameters:
//   - r: The stream to read from
//   - maxSize: Largest accepted payload; 0 means DefaultMaxSize
//
// Returns:
//   - The payload bytes
//   - ErrEndOfStream if the stream ended before any header byte,
//     ErrProtocol (wrapped) on truncation or oversize, or the transport error
func ReadRaw(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}

	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, ErrEndOfStream
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: truncated header", ErrProtocol)
		default:
			return nil, fmt.Errorf("read header: %w", err)
		}
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > maxSize {
		return nil, fmt.Errorf("%w (%d > %d)", ErrFrameTooLarge, length, maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated payload (want %d bytes)", ErrProtocol, length)
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}

	return payload, nil
}

// Channel sends and receives JSON messages over a byte stream. Receive is
// meant to be called from a single goroutine; Send may be called
// concurrently.
type Channel struct {
	rw      io.ReadWriter
	maxSize uint32
	wmu     sync.Mutex
}

// NewChannel wraps rw. maxSize of 0 selects DefaultMaxSize.
func NewChannel(rw io.ReadWriter, maxSize uint32) *Channel {
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}

	return &Channel{rw: rw, maxSize: maxSize}
}

// Send JSON-encodes v and writes it as one frame.
func (c *Channel) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteRaw(c.rw, payload)
}

// Receive reads one frame and checks that the payload is valid JSON.
func (c *Channel) Receive() (json.RawMessage, error) {
	payload, err := ReadRaw(c.rw, c.maxSize)
	if err != nil {
		return nil, err
	}

	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrProtocol)
	}

	return payload, nil
}

// ReceiveInto reads one frame and decodes it into v.
func (c *Channel) ReceiveInto(v any) error {
	raw, err := c.Receive()
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	return nil
}

// IsClosed reports whether err means the peer went away, cleanly or not.
func IsClosed(err error) bool {
	return errors.Is(err, ErrEndOfStream) || errors.Is(err, ErrProtocol)
}
