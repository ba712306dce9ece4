// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/skyrelay/pkg/destination"
	"github.com/Thermoquad/skyrelay/pkg/router"
)

var ctlJSON bool

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control a running skyrelay service",
	Long: `Send commands to the HTTP control API of a running skyrelay serve.

Examples:
  skyrelay ctl status
  skyrelay ctl start --device /dev/ttyACM0 --baud 57600
  skyrelay ctl add qgc 192.168.1.10:14550
  skyrelay ctl add mp 192.168.1.11:5760 tcp
  skyrelay ctl remove qgc
  skyrelay ctl stop`,
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show router state, counters and telemetry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newAPIClient(serverURL).Status(cmd.Context())
		if err != nil {
			return err
		}
		if ctlJSON {
			return printJSON(st)
		}
		printStatus(st)
		return nil
	},
}

var ctlStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start routing (device and baud default to the service config)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		device, baud := "", 0
		if cmd.Flags().Changed("device") {
			device = deviceName
		}
		if cmd.Flags().Changed("baud") {
			baud = baudRate
		}
		r, err := newAPIClient(serverURL).Start(cmd.Context(), device, baud)
		if err != nil {
			return err
		}
		fmt.Println(r.Message)
		return nil
	},
}

var ctlStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop routing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newAPIClient(serverURL).Stop(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(r.Message)
		return nil
	},
}

var ctlListCmd = &cobra.Command{
	Use:     "destinations",
	Aliases: []string{"ls"},
	Short:   "List destinations",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newAPIClient(serverURL).Destinations(cmd.Context())
		if err != nil {
			return err
		}
		if ctlJSON {
			return printJSON(list)
		}
		printDestinations(list)
		return nil
	},
}

var ctlAddCmd = &cobra.Command{
	Use:   "add NAME HOST[:PORT] [udp|tcp]",
	Short: "Add a destination",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := parseDestination(args)
		if err != nil {
			return err
		}
		r, err := newAPIClient(serverURL).AddDestination(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if r.Destination != nil {
			fmt.Printf("%s: %s\n", r.Message, r.Destination.String())
		} else {
			fmt.Println(r.Message)
		}
		return nil
	},
}

var ctlRemoveCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Remove a destination",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newAPIClient(serverURL).RemoveDestination(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(r.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ctlCmd)
	ctlCmd.PersistentFlags().BoolVar(&ctlJSON, "json", false, "Print raw JSON")
	ctlCmd.AddCommand(ctlStatusCmd, ctlStartCmd, ctlStopCmd, ctlListCmd, ctlAddCmd, ctlRemoveCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printStatus prints a status summary followed by the destination table
func printStatus(st router.Status) {
	fmt.Printf("State:      %s\n", st.State)
	if st.Error != "" {
		fmt.Printf("Error:      %s\n", st.Error)
	}
	if st.Device != "" {
		fmt.Printf("Device:     %s @ %d baud\n", st.Device, st.BaudRate)
	}
	if st.StartedAt != nil {
		fmt.Printf("Started:    %s\n", since(st.StartedAt))
	}
	fmt.Printf("Heartbeat:  %s\n", since(st.Stats.LastHeartbeat))
	fmt.Printf("Frames:     %s received, %s forwarded, %s uplinked\n",
		humanize.Comma(int64(st.Stats.Received)), humanize.Comma(int64(st.Stats.Forwarded)), humanize.Comma(int64(st.Stats.Uplinked)))
	fmt.Printf("Errors:     %s (%s frame, %s dropped)\n",
		humanize.Comma(int64(st.Stats.Errors)), humanize.Comma(int64(st.Stats.FrameErrors)), humanize.Comma(int64(st.Stats.Dropped)))

	if st.HeartbeatReceived {
		t := st.Telemetry
		armed := "disarmed"
		if t.Armed {
			armed = "armed"
		}
		fmt.Printf("Vehicle:    %s %s, mode %s, %s\n", orDash(t.Autopilot, "%s"), orDash(t.VehicleType, "%s"), orDash(t.Mode, "%s"), armed)
		fmt.Printf("Battery:    %s, %s remaining\n", orDash(t.BatteryVoltage, "%.2f V"), orDash(t.BatteryRemaining, "%d%%"))
		fmt.Printf("GPS:        fix %s, %s satellites\n", orDash(t.GPSFixType, "%d"), orDash(t.GPSSatellites, "%d"))
		fmt.Printf("Position:   %s, %s, %s\n", orDash(t.Latitude, "%.6f"), orDash(t.Longitude, "%.6f"), orDash(t.RelativeAltitude, "%.1f m"))
	}
	fmt.Println()
	printDestinations(st.Destinations)
}

// printDestinations prints the destination table
func printDestinations(list []destination.Info) {
	if len(list) == 0 {
		fmt.Println("No destinations")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tPROTO\tCONNECTED\tSENT\tDROPPED\tERRORS\tRECEIVED")
	for _, d := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
			d.Name, d.Addr(), d.Transport.Network(), d.Connected,
			humanize.Comma(int64(d.Sent)), humanize.Comma(int64(d.Dropped)),
			humanize.Comma(int64(d.Errors)), humanize.Comma(int64(d.Received)))
	}
	w.Flush()
}

// since formats an optional timestamp relative to now
func since(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}
