package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Variants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "screenshot",
			raw:  `{"type":"screenshot","laptop_id":"L","client_id":"A","data":"QUJD","timestamp":"2024-01-01T00:00:00"}`,
			want: Screenshot{Type: KindScreenshot, ClientID: "A", Data: "QUJD", Timestamp: "2024-01-01T00:00:00"},
		},
		{
			name: "get_screen",
			raw:  `{"type":"get_screen"}`,
			want: GetScreen{Type: KindGetScreen},
		},
		{
			name: "screen",
			raw:  `{"type":"screen","data":"QUJD","timestamp":"t"}`,
			want: Screen{Type: KindScreen, Data: "QUJD", Timestamp: "t"},
		},
		{
			name: "mouse_move",
			raw:  `{"type":"mouse_move","x":10,"y":20}`,
			want: MouseMove{Type: KindMouseMove, X: 10, Y: 20},
		},
		{
			name: "mouse_move with float coordinates",
			raw:  `{"type":"mouse_move","x":10.7,"y":20.2}`,
			want: MouseMove{Type: KindMouseMove, X: 10, Y: 20},
		},
		{
			name: "mouse_click default button",
			raw:  `{"type":"mouse_click","x":1,"y":2}`,
			want: MouseClick{Type: KindMouseClick, X: 1, Y: 2, Button: "left"},
		},
		{
			name: "mouse_click right button",
			raw:  `{"type":"mouse_click","x":1,"y":2,"button":"right"}`,
			want: MouseClick{Type: KindMouseClick, X: 1, Y: 2, Button: "right"},
		},
		{
			name: "key_press",
			raw:  `{"type":"key_press","key":"enter"}`,
			want: KeyPress{Type: KindKeyPress, Key: "enter"},
		},
		{
			name: "status",
			raw:  `{"type":"status","status":"idle"}`,
			want: Status{Type: KindStatus, Status: "idle"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Kind(), got.Kind())
		})
	}
}

func TestDecode_Unknown(t *testing.T) {
	for _, raw := range []string{`{"type":"reboot"}`, `{"x":1}`, `{"type":42}`} {
		got, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		u, ok := got.(Unknown)
		require.True(t, ok, raw)
		assert.JSONEq(t, raw, string(u.Raw))
		assert.Equal(t, Kind(""), got.Kind())
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, raw := range []string{
		`{"type":"screenshot"}`,
		`{"type":"screenshot","data":null}`,
		`{"type":"mouse_move","x":1}`,
		`{"type":"mouse_click","x":"1","y":2}`,
		`{"type":"key_press"}`,
		`{"type":"key_press","key":""}`,
		`{"type":"status"}`,
		`[1,2]`,
		`not json`,
	} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidMessage, raw)
	}
}

func TestEncode_MatchesWireFormat(t *testing.T) {
	data, err := json.Marshal(NewMouseClick(5, 6, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"mouse_click","x":5,"y":6,"button":"left"}`, string(data))

	data, err = json.Marshal(NewScreen("QUJD", "now"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"screen","data":"QUJD","timestamp":"now"}`, string(data))

	for _, m := range []Message{
		NewScreenshot("A", "QUJD", "t"),
		NewGetScreen(),
		NewMouseMove(3, 4),
		NewKeyPress("a"),
		NewStatus("ok"),
	} {
		raw, err := json.Marshal(m)
		require.NoError(t, err)
		back, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, m, back)
	}
}

func TestParseAuthRequest(t *testing.T) {
	t.Run("client_id", func(t *testing.T) {
		req, err := ParseAuthRequest([]byte(`{"token":"t","client_id":"A"}`))
		require.NoError(t, err)
		assert.Equal(t, AuthRequest{Token: "t", ClientID: "A", Role: RoleSource}, req)
	})

	t.Run("legacy id fields are normalised", func(t *testing.T) {
		req, err := ParseAuthRequest([]byte(`{"token":"t","laptop_id":"L"}`))
		require.NoError(t, err)
		assert.Equal(t, "L", req.ClientID)

		req, err = ParseAuthRequest([]byte(`{"token":"t","computer_id":"C"}`))
		require.NoError(t, err)
		assert.Equal(t, "C", req.ClientID)

		req, err = ParseAuthRequest([]byte(`{"token":"t","client_id":"A","laptop_id":"L"}`))
		require.NoError(t, err)
		assert.Equal(t, "A", req.ClientID)
	})

	t.Run("controller role without id", func(t *testing.T) {
		req, err := ParseAuthRequest([]byte(`{"token":"t","role":"controller"}`))
		require.NoError(t, err)
		assert.Equal(t, RoleController, req.Role)
		assert.Empty(t, req.ClientID)
	})

	t.Run("rejects malformed requests", func(t *testing.T) {
		for _, raw := range []string{`{"client_id":"A"}`, `{"token":5}`, `"t"`, `{"token":"t","role":"root"}`, `{`} {
			_, err := ParseAuthRequest([]byte(raw))
			assert.ErrorIs(t, err, ErrInvalidMessage, raw)
		}
	})
}

func TestAuthResponse_OK(t *testing.T) {
	assert.True(t, AuthResponse{Status: StatusSuccess}.OK())
	assert.False(t, AuthResponse{Status: StatusError, Message: "Authentication failed"}.OK())
}
