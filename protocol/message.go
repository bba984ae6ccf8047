// Package protocol defines the application messages exchanged between
// clients and the hub, and decodes raw frames into a closed set of variants.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Kind is the value of the "type" field.
type Kind string

const (
	KindScreenshot Kind = "screenshot"
	KindGetScreen  Kind = "get_screen"
	KindScreen     Kind = "screen"
	KindMouseMove  Kind = "mouse_move"
	KindMouseClick Kind = "mouse_click"
	KindKeyPress   Kind = "key_press"
	KindStatus     Kind = "status"
)

// DefaultButton is used when a mouse_click omits "button".
const DefaultButton = "left"

// ErrInvalidMessage is returned by Decode when a recognised message lacks a
// required field or is not a JSON object.
var ErrInvalidMessage = errors.New("invalid message")

// Message is one decoded inbound or outbound application message. The set of
// implementations is closed; anything unrecognised decodes to Unknown.
type Message interface {
	Kind() Kind
	isMessage()
}

// Screenshot carries a frame pushed by a screen source.
type Screenshot struct {
	Type      Kind   `json:"type"`
	ClientID  string `json:"client_id,omitempty"`
	Data      string `json:"data"`
	Timestamp string `json:"timestamp,omitempty"`
}

// GetScreen asks the hub to capture its own screen.
type GetScreen struct {
	Type Kind `json:"type"`
}

// Screen is the hub's reply to GetScreen.
type Screen struct {
	Type      Kind   `json:"type"`
	Data      string `json:"data"`
	Timestamp string `json:"timestamp"`
}

// MouseMove moves the pointer.
type MouseMove struct {
	Type Kind `json:"type"`
	X    int  `json:"x"`
	Y    int  `json:"y"`
}

// MouseClick clicks at a position.
type MouseClick struct {
	Type   Kind   `json:"type"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Button string `json:"button"`
}

// KeyPress presses and releases one key.
type KeyPress struct {
	Type Kind   `json:"type"`
	Key  string `json:"key"`
}

// Status is an informational update from a client.
type Status struct {
	Type   Kind   `json:"type"`
	Status string `json:"status"`
}

// Unknown is any message whose type is not recognised, including messages
// without a type.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Screenshot) Kind() Kind { return KindScreenshot }
func (GetScreen) Kind() Kind  { return KindGetScreen }
func (Screen) Kind() Kind     { return KindScreen }
func (MouseMove) Kind() Kind  { return KindMouseMove }
func (MouseClick) Kind() Kind { return KindMouseClick }
func (KeyPress) Kind() Kind   { return KindKeyPress }
func (Status) Kind() Kind     { return KindStatus }
func (Unknown) Kind() Kind    { return "" }

func (Screenshot) isMessage() {}
func (GetScreen) isMessage()  {}
func (Screen) isMessage()     {}
func (MouseMove) isMessage()  {}
func (MouseClick) isMessage() {}
func (KeyPress) isMessage()   {}
func (Status) isMessage()     {}
func (Unknown) isMessage()    {}

// NewScreenshot builds a screenshot message.
func NewScreenshot(clientID, data, timestamp string) Screenshot {
	return Screenshot{Type: KindScreenshot, ClientID: clientID, Data: data, Timestamp: timestamp}
}

// NewGetScreen builds a get_screen request.
func NewGetScreen() GetScreen {
	return GetScreen{Type: KindGetScreen}
}

// NewScreen builds a screen reply.
func NewScreen(data, timestamp string) Screen {
	return Screen{Type: KindScreen, Data: data, Timestamp: timestamp}
}

// NewMouseMove builds a mouse_move command.
func NewMouseMove(x, y int) MouseMove {
	return MouseMove{Type: KindMouseMove, X: x, Y: y}
}

// NewMouseClick builds a mouse_click command; an empty button means left.
func NewMouseClick(x, y int, button string) MouseClick {
	if button == "" {
		button = DefaultButton
	}
	return MouseClick{Type: KindMouseClick, X: x, Y: y, Button: button}
}

// NewKeyPress builds a key_press command.
func NewKeyPress(key string) KeyPress {
	return KeyPress{Type: KindKeyPress, Key: key}
}

// NewStatus builds a status update.
func NewStatus(status string) Status {
	return Status{Type: KindStatus, Status: status}
}

// Decode turns one frame payload into a Message. Unrecognised types yield
// Unknown with a nil error; recognised types with missing fields yield
// ErrInvalidMessage.
func Decode(raw []byte) (Message, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: not JSON", ErrInvalidMessage)
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidMessage)
	}

	typ := doc.Get("type")
	kind := Kind(typ.String())
	if typ.Type != gjson.String {
		kind = ""
	}

	switch kind {
	case KindScreenshot:
		data, err := requireField(doc, kind, "data")
		if err != nil {
			return nil, err
		}
		return Screenshot{
			Type:      kind,
			ClientID:  doc.Get("client_id").String(),
			Data:      data.String(),
			Timestamp: doc.Get("timestamp").String(),
		}, nil

	case KindGetScreen:
		return GetScreen{Type: kind}, nil

	case KindScreen:
		data, err := requireField(doc, kind, "data")
		if err != nil {
			return nil, err
		}
		return Screen{Type: kind, Data: data.String(), Timestamp: doc.Get("timestamp").String()}, nil

	case KindMouseMove:
		x, y, err := position(doc, kind)
		if err != nil {
			return nil, err
		}
		return MouseMove{Type: kind, X: x, Y: y}, nil

	case KindMouseClick:
		x, y, err := position(doc, kind)
		if err != nil {
			return nil, err
		}
		button := doc.Get("button").String()
		if button == "" {
			button = DefaultButton
		}
		return MouseClick{Type: kind, X: x, Y: y, Button: button}, nil

	case KindKeyPress:
		key, err := requireField(doc, kind, "key")
		if err != nil {
			return nil, err
		}
		if key.String() == "" {
			return nil, fmt.Errorf("%w: %s has empty key", ErrInvalidMessage, kind)
		}
		return KeyPress{Type: kind, Key: key.String()}, nil

	case KindStatus:
		status, err := requireField(doc, kind, "status")
		if err != nil {
			return nil, err
		}
		return Status{Type: kind, Status: status.String()}, nil

	default:
		return Unknown{Type: typ.String(), Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func requireField(doc gjson.Result, kind Kind, field string) (gjson.Result, error) {
	v := doc.Get(field)
	if !v.Exists() || v.Type == gjson.Null {
		return v, fmt.Errorf("%w: %s without %q", ErrInvalidMessage, kind, field)
	}
	return v, nil
}

func position(doc gjson.Result, kind Kind) (int, int, error) {
	x, err := requireField(doc, kind, "x")
	if err != nil {
		return 0, 0, err
	}
	y, err := requireField(doc, kind, "y")
	if err != nil {
		return 0, 0, err
	}
	if x.Type != gjson.Number || y.Type != gjson.Number {
		return 0, 0, fmt.Errorf("%w: %s coordinates must be numbers", ErrInvalidMessage, kind)
	}
	return int(x.Int()), int(y.Int()), nil
}
