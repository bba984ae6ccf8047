package provider

import (
	"context"
	"sync"
)

// Call is one recorded provider invocation.
type Call struct {
	Op     Op
	X, Y   int
	Button string
	Key    string
}

// Recorder remembers every call and answers with fixed results. It backs
// the recorder provider kind, which logs input instead of performing it.
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	// Frame is returned by Capture when CaptureErr is nil. An empty Frame
	// makes Capture return ErrUnavailable.
	Frame      string
	CaptureErr error
	InputErr   error

	// OnCall, if set, is invoked after each call is recorded.
	OnCall func(Call)
}

// Capture implements ScreenProvider.
func (r *Recorder) Capture(context.Context) (string, error) {
	if err := r.record(Call{Op: OpCapture}); err != nil {
		return "", err
	}
	return r.Frame, nil
}

// MoveTo implements InputProvider.
func (r *Recorder) MoveTo(_ context.Context, x, y int) error {
	return r.record(Call{Op: OpMoveTo, X: x, Y: y})
}

// Click implements InputProvider.
func (r *Recorder) Click(_ context.Context, x, y int, button string) error {
	return r.record(Call{Op: OpClick, X: x, Y: y, Button: button})
}

// PressKey implements InputProvider.
func (r *Recorder) PressKey(_ context.Context, key string) error {
	return r.record(Call{Op: OpPressKey, Key: key})
}

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Call(nil), r.calls...)
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	err := r.InputErr
	if c.Op == OpCapture {
		err = r.CaptureErr
		if err == nil && r.Frame == "" {
			err = ErrUnavailable
		}
	}
	onCall := r.OnCall
	r.mu.Unlock()

	if onCall != nil {
		onCall(c)
	}
	return err
}
