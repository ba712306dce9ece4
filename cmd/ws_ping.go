// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/skyrelay/pkg/publisher"
)

var (
	wsPingTimeout int
	wsPingCount   int
)

var wsPingCmd = &cobra.Command{
	Use:   "ws_ping",
	Short: "Test the status feed by sending ping messages",
	Long: `Send ping messages to the status feed of a running skyrelay serve and wait
for pong replies.

Status pushes arriving between a ping and its pong are counted but otherwise
ignored. This is useful for verifying:
  - The HTTP server is reachable
  - The websocket upgrade succeeds (proxies, TLS)
  - The feed answers control messages

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runWsPing,
}

func init() {
	rootCmd.AddCommand(wsPingCmd)
	wsPingCmd.Flags().IntVar(&wsPingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	wsPingCmd.Flags().IntVar(&wsPingCount, "count", 3, "Number of pings to send")
}

// pingFeed sends one ping and waits for the pong. It returns the round trip
// time and the number of status pushes seen while waiting.
func pingFeed(conn *websocket.Conn, timeout time.Duration) (time.Duration, int, error) {
	start := time.Now()
	if err := conn.WriteJSON(publisher.Envelope{Type: publisher.TypePing}); err != nil {
		return 0, 0, fmt.Errorf("send failed: %w", err)
	}
	if err := conn.SetReadDeadline(start.Add(timeout)); err != nil {
		return 0, 0, err
	}
	defer conn.SetReadDeadline(time.Time{})

	pushes := 0
	for {
		var env publisher.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return 0, pushes, err
		}
		switch env.Type {
		case publisher.TypePong:
			return time.Since(start), pushes, nil
		case publisher.TypeStatus:
			pushes++
		}
	}
}

func runWsPing(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	conn, err := dialFeed(ctx, serverURL)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Skyrelay - Status Feed Ping Test\n")
	fmt.Printf("Server: %s\n", serverURL)
	fmt.Printf("Timeout: %d seconds per ping\n", wsPingTimeout)
	fmt.Printf("Count: %d pings\n\n", wsPingCount)

	successCount := 0
	failCount := 0

	for i := 1; i <= wsPingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, wsPingCount)

		rtt, pushes, err := pingFeed(conn, time.Duration(wsPingTimeout)*time.Second)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
			// A timed out read leaves the connection unusable
			break
		}
		fmt.Printf("PONG rtt=%v (%d status pushes)\n", rtt.Round(time.Millisecond), pushes)
		successCount++

		// Small delay between pings
		if i < wsPingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		successCount+failCount, successCount, float64(wsPingCount-successCount)/float64(wsPingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
