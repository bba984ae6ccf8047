// Package provider defines the screen capture and input injection backends
// the hub drives, plus a few generic implementations.
package provider

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a backend cannot serve an operation at all,
// for example because no capture command is configured or the binary is
// missing.
var ErrUnavailable = errors.New("provider unavailable")

// ScreenProvider captures the local screen.
type ScreenProvider interface {
	// Capture returns one encoded image as base64 text.
	Capture(ctx context.Context) (string, error)
}

// InputProvider injects pointer and keyboard events.
type InputProvider interface {
	MoveTo(ctx context.Context, x, y int) error
	Click(ctx context.Context, x, y int, button string) error
	PressKey(ctx context.Context, key string) error
}

// Provider is both a ScreenProvider and an InputProvider.
type Provider interface {
	ScreenProvider
	InputProvider
}

// Op names a provider operation in logs and metrics.
type Op string

const (
	OpCapture  Op = "capture"
	OpMoveTo   Op = "move_to"
	OpClick    Op = "click"
	OpPressKey Op = "press_key"
)

// Noop is a Provider for headless hubs: capture is unavailable and input is
// accepted and discarded.
type Noop struct{}

func (Noop) Capture(context.Context) (string, error)       { return "", ErrUnavailable }
func (Noop) MoveTo(context.Context, int, int) error        { return nil }
func (Noop) Click(context.Context, int, int, string) error { return nil }
func (Noop) PressKey(context.Context, string) error        { return nil }
