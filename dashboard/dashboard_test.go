package dashboard

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cyberinferno/screenhub/framestore"
	"github.com/cyberinferno/screenhub/metrics"
	"github.com/cyberinferno/screenhub/protocol"
	"github.com/cyberinferno/screenhub/registry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopHandle struct{}

func (nopHandle) ID() uint32   { return 1 }
func (nopHandle) Close() error { return nil }

func setup(t *testing.T) (*registry.Registry, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New(0, nil, nil)
	reg.SetOnline(true)
	return reg, New(":0", reg, metrics.New("test"), nil).Handler()
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	return do(h, http.MethodGet, path)
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func status(t *testing.T, h http.Handler) registry.Snapshot {
	t.Helper()
	rec := get(h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap registry.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

func TestIndex(t *testing.T) {
	_, h := setup(t)

	rec := get(h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/api/status")
}

func TestStatus(t *testing.T) {
	reg, h := setup(t)
	reg.Register("A", "10.0.0.1:4000", protocol.RoleSource, nopHandle{})
	require.NoError(t, reg.UpdateFrame(context.Background(), "A", "QUJD"))

	rec := get(h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var snap registry.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "Client connected: A", snap.ServerStatus)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, "10.0.0.1:4000", snap.Sessions[0].Address)
	assert.Len(t, snap.History, 1)
	assert.Equal(t, []string{"A"}, snap.FrameIDs)
}

func TestScreenshot(t *testing.T) {
	reg, h := setup(t)
	ctx := context.Background()
	require.NoError(t, reg.UpdateFrame(ctx, "A", "QUJD"))
	require.NoError(t, reg.UpdateFrame(ctx, "B", "data:image/jpeg;base64,WFla"))
	require.NoError(t, reg.UpdateFrame(ctx, "bad", "!!not base64!!"))

	t.Run("by id", func(t *testing.T) {
		rec := get(h, "/api/screenshot/A")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
		assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "ABC", rec.Body.String())
	})

	t.Run("data url", func(t *testing.T) {
		rec := get(h, "/api/screenshot/B")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "XYZ", rec.Body.String())
	})

	t.Run("missing", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(h, "/api/screenshot/nobody").Code)
	})

	t.Run("corrupt", func(t *testing.T) {
		assert.Equal(t, http.StatusInternalServerError, get(h, "/api/screenshot/bad").Code)
	})
}

func TestStatus_DropsExpiredFrames(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := registry.New(0, framestore.NewMemoryStore(30*time.Millisecond, 0), nil)
	reg.SetOnline(true)
	h := New(":0", reg, nil, nil).Handler()

	require.NoError(t, reg.UpdateFrame(context.Background(), "A", "QUJD"))
	assert.Equal(t, []string{"A"}, status(t, h).FrameIDs)

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, status(t, h).FrameIDs)
}

func TestDeleteScreenshot(t *testing.T) {
	reg, h := setup(t)
	ctx := context.Background()
	require.NoError(t, reg.UpdateFrame(ctx, "A", "QUJD"))
	require.NoError(t, reg.UpdateFrame(ctx, "B", "WFla"))

	rec := do(h, http.MethodDelete, "/api/screenshot/A")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, DELETE", rec.Header().Get("Access-Control-Allow-Methods"))

	assert.Equal(t, http.StatusNotFound, get(h, "/api/screenshot/A").Code)
	assert.Equal(t, []string{"B"}, status(t, h).FrameIDs)

	// Unknown ids are a no-op.
	assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, "/api/screenshot/nobody").Code)
}

func TestLatestScreenshot(t *testing.T) {
	reg, h := setup(t)

	assert.Equal(t, http.StatusNotFound, get(h, "/api/screenshot").Code)

	require.NoError(t, reg.UpdateFrame(context.Background(), "A", "QUJD"))
	require.NoError(t, reg.UpdateFrame(context.Background(), "B", "WFla"))

	rec := get(h, "/api/screenshot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "XYZ", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	reg, h := setup(t)
	ctx := context.Background()
	require.NoError(t, reg.UpdateFrame(ctx, "A", "QUJD"))
	require.NoError(t, reg.UpdateFrame(ctx, "B", "WFla"))
	get(h, "/api/status")

	rec := get(h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{method="GET",route="/api/status",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "test_stored_frames 2")

	require.NoError(t, reg.ForgetFrame(ctx, "A"))
	assert.Contains(t, get(h, "/metrics").Body.String(), "test_stored_frames 1")
}

func TestMetricsDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(":0", registry.New(0, nil, nil), nil, nil).Handler()

	assert.Equal(t, http.StatusNotFound, get(h, "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/status").Code)
}

func TestServe_Shutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := New(addr, registry.New(0, nil, nil), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("dashboard did not stop")
	}
}
