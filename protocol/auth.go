package protocol

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Role is what a connection is allowed to do once authenticated.
type Role string

const (
	// RoleSource streams its own screen to the hub.
	RoleSource Role = "source"
	// RoleController drives the hub's screen and input.
	RoleController Role = "controller"
)

// Handshake response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// legacyIDFields are older spellings of client_id, checked in order.
var legacyIDFields = []string{"laptop_id", "computer_id"}

// AuthRequest is the first message on every connection.
type AuthRequest struct {
	Token    string `json:"token"`
	ClientID string `json:"client_id,omitempty"`
	Role     Role   `json:"role,omitempty"`
}

// AuthResponse is the hub's answer to AuthRequest.
type AuthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the hub accepted the connection.
func (r AuthResponse) OK() bool {
	return r.Status == StatusSuccess
}

// ParseAuthRequest decodes a handshake payload. The client id may arrive as
// client_id, laptop_id or computer_id; the result always uses ClientID. A
// missing role means RoleSource. An empty client id is left empty for the
// caller to fill in.
func ParseAuthRequest(raw []byte) (AuthRequest, error) {
	if !gjson.ValidBytes(raw) {
		return AuthRequest{}, fmt.Errorf("%w: handshake is not JSON", ErrInvalidMessage)
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return AuthRequest{}, fmt.Errorf("%w: handshake is not an object", ErrInvalidMessage)
	}

	token := doc.Get("token")
	if token.Type != gjson.String {
		return AuthRequest{}, fmt.Errorf("%w: handshake without token", ErrInvalidMessage)
	}

	req := AuthRequest{Token: token.String(), ClientID: doc.Get("client_id").String()}
	for _, field := range legacyIDFields {
		if req.ClientID != "" {
			break
		}
		req.ClientID = doc.Get(field).String()
	}

	switch role := Role(doc.Get("role").String()); role {
	case "", RoleSource:
		req.Role = RoleSource
	case RoleController:
		req.Role = RoleController
	default:
		return AuthRequest{}, fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, role)
	}

	return req, nil
}
