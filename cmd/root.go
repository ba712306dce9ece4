// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Service configuration
	configFile string

	// Device flags for the diagnostic commands
	deviceName    string
	baudRate      int
	wsUsername    string
	wsNoSSLVerify bool

	// Control API address for monitor and ctl
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "skyrelay",
	Short: "MAVLink Telemetry Router",
	Long: `Skyrelay - Routes MAVLink telemetry between a flight controller and ground stations.

The serve command reads frames from the flight controller link, fans them out to
every configured ground-station destination over UDP or TCP, forwards uplink
frames back to the vehicle, and exposes an HTTP control API with a live status
feed.

The remaining commands diagnose a link directly without the router.

Device strings:
  Serial:    --device /dev/ttyACM0 [--baud 57600]
  TCP:       --device tcp:127.0.0.1:5760
  WebSocket: --device ws://host/path [--username user]

For WebSocket authentication, the password is read from the SKYRELAY_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ./skyrelay.yaml or /etc/skyrelay/skyrelay.yaml)")

	// Device flags
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "Flight controller device (serial path, tcp:host:port or ws:// URL)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 57600, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth (websocket only)")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://127.0.0.1:8000", "Skyrelay control API address")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
