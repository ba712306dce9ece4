// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/skyrelay/pkg/link"
	"github.com/Thermoquad/skyrelay/pkg/mavlink"
)

var heartbeatTimeout int

var waitHeartbeatCmd = &cobra.Command{
	Use:   "wait_heartbeat",
	Short: "Test a link by waiting for a MAVLink heartbeat",
	Long: `Wait for a valid HEARTBEAT frame on the device until timeout.

This command opens a serial, TCP or WebSocket device and waits for a heartbeat
from the flight controller. Bytes that do not form a valid frame and frames
of other message kinds are ignored.

Exit codes:
  0 - Heartbeat received before timeout
  1 - Timeout reached without receiving a heartbeat
  2 - Connection error

Useful for checking wiring and baud rate before starting the router.`,
	RunE: runWaitHeartbeat,
}

func init() {
	rootCmd.AddCommand(waitHeartbeatCmd)
	waitHeartbeatCmd.Flags().IntVar(&heartbeatTimeout, "timeout", 10, "Timeout in seconds to wait for a heartbeat")
}

// heartbeatResult is the outcome of waitForHeartbeat
type heartbeatResult struct {
	frame     *mavlink.Frame
	heartbeat mavlink.Heartbeat
	skipped   uint64 // bytes discarded before the heartbeat
	other     int    // valid frames of other kinds seen first
}

// waitForHeartbeat reads conn until a heartbeat arrives or ctx ends
func waitForHeartbeat(ctx context.Context, conn link.Link) (heartbeatResult, error) {
	type outcome struct {
		res heartbeatResult
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		decoder := mavlink.NewDecoder()
		buf := make([]byte, 512)
		var res heartbeatResult
		for {
			n, err := conn.Read(buf)
			if err != nil {
				done <- outcome{err: err}
				return
			}
			for frame := range decoder.Frames(buf[:n]) {
				if frame.MsgID != mavlink.MsgHeartbeat {
					res.other++
					continue
				}
				hb, err := mavlink.DecodeHeartbeat(frame)
				if err != nil {
					continue
				}
				res.frame = frame
				res.heartbeat = hb
				res.skipped = decoder.Stats().DiscardedBytes
				done <- outcome{res: res}
				return
			}
		}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		// Unblock the reader
		conn.Close()
		return heartbeatResult{}, ctx.Err()
	}
}

func runWaitHeartbeat(cmd *cobra.Command, args []string) error {
	timeout := time.Duration(heartbeatTimeout) * time.Second
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Skyrelay - Wait Heartbeat\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", heartbeatTimeout)
	fmt.Printf("Waiting for HEARTBEAT...\n\n")

	res, err := waitForHeartbeat(ctx, conn)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		fmt.Fprintf(os.Stderr, "TIMEOUT: No heartbeat received within %d seconds\n", heartbeatTimeout)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}

	if res.skipped > 0 || res.other > 0 {
		fmt.Printf("(skipped %d invalid bytes and %d other frames first)\n", res.skipped, res.other)
	}
	hb := res.heartbeat
	fmt.Printf("SUCCESS: Received heartbeat\n")
	fmt.Printf("  System: %d, Component: %d\n", res.frame.SysID, res.frame.CompID)
	fmt.Printf("  Protocol: v%d\n", res.frame.Version)
	fmt.Printf("  Autopilot: %s\n", mavlink.FormatAutopilot(hb.Autopilot))
	fmt.Printf("  Vehicle: %s\n", mavlink.FormatVehicleType(hb.Type))
	fmt.Printf("  Armed: %t\n", hb.Armed())
	return nil
}
