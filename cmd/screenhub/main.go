package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName    = "screenhub"
	appVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Remote screen sharing hub",
	Long: `Screenhub collects screenshots from remote machines and relays
mouse and keyboard commands to the machine running the hub.

  serve    run the hub and its web dashboard
  share    stream this machine's screen to a hub
  control  send a single command to a hub`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(controlCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
