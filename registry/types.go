package registry

import (
	"time"

	"github.com/cyberinferno/screenhub/protocol"
)

// EventKind tells whether a history event is a connect or a disconnect.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
)

// SessionStatus is the state of a session as shown on the dashboard.
type SessionStatus string

const (
	SessionConnected    SessionStatus = "Connected"
	SessionDisconnected SessionStatus = "Disconnected"
)

// SessionInfo describes one live session.
type SessionInfo struct {
	ClientID    string        `json:"id"`
	Address     string        `json:"address"`
	Role        protocol.Role `json:"role"`
	ConnectedAt time.Time     `json:"connected_at"`
	Status      SessionStatus `json:"status"`
}

// Event is one immutable history record.
type Event struct {
	Kind     EventKind `json:"event"`
	ClientID string    `json:"client_id"`
	Address  string    `json:"address,omitempty"`
	Time     time.Time `json:"time"`
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	ServerStatus string        `json:"server_status"`
	Sessions     []SessionInfo `json:"connected_clients"`
	History      []Event       `json:"connection_history"`
	FrameIDs     []string      `json:"screenshot_ids"`
}
