package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cyberinferno/screenhub/client"
	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/protocol"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Send a single command to a hub",
	Long: `Connect to the hub as a controller, send one command and exit.

Examples:
  screenhub control move 100 200
  screenhub control click 100 200 --button right
  screenhub control key enter
  screenhub control screen -o screen.jpg`,
}

var controlMoveCmd = &cobra.Command{
	Use:   "move <x> <y>",
	Short: "Move the hub's pointer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, y, err := parsePosition(args)
		if err != nil {
			return err
		}
		return withController(cmd, func(_ context.Context, c *client.Client) error {
			return c.Send(protocol.NewMouseMove(x, y))
		})
	},
}

var controlClickCmd = &cobra.Command{
	Use:   "click <x> <y>",
	Short: "Click on the hub's screen",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, y, err := parsePosition(args)
		if err != nil {
			return err
		}
		button, _ := cmd.Flags().GetString("button")
		return withController(cmd, func(_ context.Context, c *client.Client) error {
			return c.Send(protocol.NewMouseClick(x, y, button))
		})
	},
}

var controlKeyCmd = &cobra.Command{
	Use:   "key <name>",
	Short: "Press a key on the hub",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(_ context.Context, c *client.Client) error {
			return c.Send(protocol.NewKeyPress(args[0]))
		})
	},
}

var controlScreenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Fetch the hub's current screen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, _ := cmd.Flags().GetString("output")
		return withController(cmd, func(ctx context.Context, c *client.Client) error {
			screen, err := c.RequestScreen(ctx)
			if err != nil {
				return fmt.Errorf("request screen: %w", err)
			}
			return writeScreen(screen, out)
		})
	},
}

func init() {
	controlCmd.PersistentFlags().String("hub", "", "override client.hub (host:port)")

	controlClickCmd.Flags().String("button", protocol.DefaultButton, "mouse button (left, right, middle)")
	controlScreenCmd.Flags().StringP("output", "o", "-", "file to write the image to, - for stdout")

	controlCmd.AddCommand(controlMoveCmd, controlClickCmd, controlKeyCmd, controlScreenCmd)
}

// withController connects as a controller, runs fn under the request
// timeout and disconnects.
func withController(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("hub"); v != "" {
		cfg.Client.Hub = v
	}
	cfg.Client.Role = protocol.RoleController
	cfg.Client.AutoReconnect = false

	if err := cfg.ValidateClient(); err != nil {
		return err
	}

	log, err := newLogger(cfg, appName+"-control")
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Client.RequestTimeout)
	defer cancel()

	c := client.New(clientConfig(cfg.Client), log)
	defer c.Close()

	if err := c.Connect(ctx); err != nil {
		return err
	}

	if err := fn(ctx, c); err != nil {
		log.Error("command failed", logger.Err(err))
		return err
	}

	return nil
}

func parsePosition(args []string) (int, int, error) {
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid x %q: %w", args[0], err)
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid y %q: %w", args[1], err)
	}
	return x, y, nil
}

// writeScreen decodes the base64 image and writes it to path, or to stdout
// for "-".
func writeScreen(screen protocol.Screen, path string) error {
	data := screen.Data
	if i := strings.Index(data, ","); strings.HasPrefix(data, "data:") && i >= 0 {
		data = data[i+1:]
	}

	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("decode screen: %w", err)
	}

	if path == "" || path == "-" {
		_, err = os.Stdout.Write(img)
		return err
	}

	return os.WriteFile(path, img, 0o644)
}
