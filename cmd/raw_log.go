// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/skyrelay/pkg/link"
	"github.com/Thermoquad/skyrelay/pkg/mavlink"
)

var rawUnknown bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display MAVLink frames as they arrive.

Each frame is shown with timestamp, protocol version, sequence, source system and
component, message name and decoded payload. Frames failing the checksum are
skipped silently; a byte summary is printed on exit.

Supports serial, TCP and WebSocket devices.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawUnknown, "unknown", true, "Show frames with message ids this build cannot verify")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close unblocks the pending read on Ctrl+C
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Printf("Skyrelay - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := mavlink.NewDecoder(mavlink.WithUnknownMessages(rawUnknown))
	buf := make([]byte, 512)
	var total uint64

	defer func() {
		ds := decoder.Stats()
		fmt.Printf("\nRead %s, %s frames, %s bytes skipped\n",
			humanize.Bytes(total), humanize.Comma(int64(ds.Frames)), humanize.Comma(int64(ds.DiscardedBytes)))
	}()

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, link.ErrClosed) {
				return nil
			}
			log.Printf("Read error: %v", err)
			return err
		}
		total += uint64(n)

		for frame := range decoder.Frames(buf[:n]) {
			fmt.Print(mavlink.FormatFrame(frame))
		}
	}
}
