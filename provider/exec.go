package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Placeholders expanded in command templates.
const (
	PlaceholderX         = "{x}"
	PlaceholderY         = "{y}"
	PlaceholderButton    = "{button}"
	PlaceholderButtonNum = "{button_num}"
	PlaceholderKey       = "{key}"
)

// Commands holds one argv template per operation. An empty template makes
// that operation return ErrUnavailable.
type Commands struct {
	Capture  []string `yaml:"capture"`
	MoveTo   []string `yaml:"move_to"`
	Click    []string `yaml:"click"`
	PressKey []string `yaml:"press_key"`
}

// DefaultCommands drives an X11 desktop with ImageMagick and xdotool.
func DefaultCommands() Commands {
	return Commands{
		Capture:  []string{"import", "-window", "root", "jpeg:-"},
		MoveTo:   []string{"xdotool", "mousemove", PlaceholderX, PlaceholderY},
		Click:    []string{"xdotool", "mousemove", PlaceholderX, PlaceholderY, "click", PlaceholderButtonNum},
		PressKey: []string{"xdotool", "key", "--", PlaceholderKey},
	}
}

// DefaultKeyMap translates common key names sent by controllers into xdotool
// keysyms. Keys not in the map are passed through unchanged.
var DefaultKeyMap = map[string]string{
	"enter":     "Return",
	"return":    "Return",
	"esc":       "Escape",
	"escape":    "Escape",
	"backspace": "BackSpace",
	"tab":       "Tab",
	"space":     "space",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"delete":    "Delete",
	"home":      "Home",
	"end":       "End",
	"pageup":    "Prior",
	"pagedown":  "Next",
	"ctrl":      "ctrl",
	"alt":       "alt",
	"shift":     "shift",
}

var buttonNumbers = map[string]int{"left": 1, "middle": 2, "right": 3}

// Exec runs external commands for each operation. Capture stdout is
// base64-encoded as-is, so the capture command must write an image to stdout.
type Exec struct {
	commands Commands
	keyMap   map[string]string
}

// NewExec creates an Exec provider. A nil keyMap selects DefaultKeyMap.
func NewExec(commands Commands, keyMap map[string]string) *Exec {
	if keyMap == nil {
		keyMap = DefaultKeyMap
	}

	return &Exec{commands: commands, keyMap: keyMap}
}

// Capture implements ScreenProvider.
func (e *Exec) Capture(ctx context.Context) (string, error) {
	out, err := e.run(ctx, OpCapture, e.commands.Capture, nil)
	if err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", fmt.Errorf("%s: command produced no output", OpCapture)
	}

	return base64.StdEncoding.EncodeToString(out), nil
}

// MoveTo implements InputProvider.
func (e *Exec) MoveTo(ctx context.Context, x, y int) error {
	_, err := e.run(ctx, OpMoveTo, e.commands.MoveTo, strings.NewReplacer(
		PlaceholderX, strconv.Itoa(x),
		PlaceholderY, strconv.Itoa(y),
	))
	return err
}

// Click implements InputProvider. Buttons are left, middle or right.
func (e *Exec) Click(ctx context.Context, x, y int, button string) error {
	num, ok := buttonNumbers[strings.ToLower(button)]
	if !ok {
		return fmt.Errorf("%s: unknown button %q", OpClick, button)
	}

	_, err := e.run(ctx, OpClick, e.commands.Click, strings.NewReplacer(
		PlaceholderX, strconv.Itoa(x),
		PlaceholderY, strconv.Itoa(y),
		PlaceholderButton, strings.ToLower(button),
		PlaceholderButtonNum, strconv.Itoa(num),
	))
	return err
}

// PressKey implements InputProvider.
func (e *Exec) PressKey(ctx context.Context, key string) error {
	if mapped, ok := e.keyMap[strings.ToLower(key)]; ok {
		key = mapped
	}

	_, err := e.run(ctx, OpPressKey, e.commands.PressKey, strings.NewReplacer(PlaceholderKey, key))
	return err
}

// run expands the template and executes it. Arguments are never passed
// through a shell.
func (e *Exec) run(ctx context.Context, op Op, template []string, r *strings.Replacer) ([]byte, error) {
	if len(template) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrUnavailable)
	}

	argv := make([]string, len(template))
	for i, arg := range template {
		if r != nil {
			arg = r.Replace(arg)
		}
		argv[i] = arg
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%s: %w: %s", op, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}
