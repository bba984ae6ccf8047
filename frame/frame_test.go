package frame

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRaw_Header(t *testing.T) {
	for _, n := range []int{0, 1, 255, 256, 70000} {
		var buf bytes.Buffer
		require.NoError(t, WriteRaw(&buf, bytes.Repeat([]byte{'x'}, n)))

		assert.Equal(t, HeaderSize+n, buf.Len())
		assert.Equal(t, uint32(n), binary.BigEndian.Uint32(buf.Bytes()[:HeaderSize]))

		payload, err := ReadRaw(&buf, 0)
		require.NoError(t, err)
		assert.Len(t, payload, n)
	}
}

func TestChannel_RoundTrip(t *testing.T) {
	messages := []map[string]any{
		{"type": "mouse_click", "x": 10.0, "y": 20.0, "button": "right"},
		{"token": "s3cret", "client_id": "laptop-ü"},
		{"type": "screenshot", "data": "aGVsbG8=", "nested": map[string]any{"a": []any{1.0, "two"}}},
		{},
	}

	var buf bytes.Buffer
	ch := NewChannel(&buf, 0)
	for _, m := range messages {
		require.NoError(t, ch.Send(m))
	}

	for _, want := range messages {
		var got map[string]any
		require.NoError(t, ch.ReceiveInto(&got))
		assert.Equal(t, want, got)
	}

	_, err := ch.Receive()
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestReadRaw_Errors(t *testing.T) {
	t.Run("empty stream is end of stream", func(t *testing.T) {
		_, err := ReadRaw(bytes.NewReader(nil), 0)
		assert.ErrorIs(t, err, ErrEndOfStream)
		assert.True(t, IsClosed(err))
	})

	t.Run("partial header is protocol error", func(t *testing.T) {
		_, err := ReadRaw(bytes.NewReader([]byte{0, 0}), 0)
		assert.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("truncated payload is protocol error", func(t *testing.T) {
		var buf bytes.Buffer
		header := make([]byte, HeaderSize)
		binary.BigEndian.PutUint32(header, 100)
		buf.Write(header)
		buf.Write(bytes.Repeat([]byte{'a'}, 50))

		_, err := ReadRaw(&buf, 0)
		assert.ErrorIs(t, err, ErrProtocol)
		assert.False(t, errors.Is(err, ErrEndOfStream))
	})

	t.Run("oversized frame is rejected before allocation", func(t *testing.T) {
		header := make([]byte, HeaderSize)
		binary.BigEndian.PutUint32(header, 1024)
		_, err := ReadRaw(bytes.NewReader(header), 512)
		assert.ErrorIs(t, err, ErrFrameTooLarge)
		assert.ErrorIs(t, err, ErrProtocol)
	})
}

func TestChannel_InvalidJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRaw(&buf, []byte("{not json")))
	require.NoError(t, WriteRaw(&buf, nil))

	ch := NewChannel(&buf, 0)
	_, err := ch.Receive()
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = ch.Receive()
	assert.ErrorIs(t, err, ErrProtocol, "zero-length payload is not JSON")
}

func TestChannel_TruncatedOverSocketDoesNotHang(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	go func() {
		header := make([]byte, HeaderSize)
		binary.BigEndian.PutUint32(header, 100)
		_, _ = client.Write(header)
		_, _ = client.Write(bytes.Repeat([]byte{'{'}, 50))
		_ = client.Close()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := NewChannel(server, 0).Receive()
		done <- err
	}()

	select {
	case err := <-done:
		assert.True(t, IsClosed(err), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("receive hung on truncated frame")
	}
}

func TestChannel_ConcurrentSend(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sender := NewChannel(client, 0)
	const n = 20
	for i := range n {
		go func(i int) {
			_ = sender.Send(map[string]int{"seq": i})
		}(i)
	}

	receiver := NewChannel(server, 0)
	seen := map[int]bool{}
	for range n {
		raw, err := receiver.Receive()
		require.NoError(t, err)
		var m map[string]int
		require.NoError(t, json.Unmarshal(raw, &m))
		seen[m["seq"]] = true
	}
	assert.Len(t, seen, n)
}
