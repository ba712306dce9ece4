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
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/skyrelay/pkg/link"
	"github.com/Thermoquad/skyrelay/pkg/mavlink"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze corrupt frames and implausible values",
	Long: `Track frame errors, stream corruption, and anomalous values with statistics.

This command validates each frame and detects:
  - Checksum failures and unsupported header flags
  - Unknown message ids and bytes skipped while resynchronising
  - Anomalous telemetry values (coordinates out of range, impossible
    attitude, battery voltage spikes, invalid GPS fix types)
  - Statistics and trends (frame rate, error rate, per-message counts)

By default, only errors are displayed. Use --show-all to display valid frames too.

The terminal UI is used when stdout is a terminal; otherwise errors are
printed as text with periodic statistics summaries.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI && term.IsTerminal(int(os.Stdout.Fd())) {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(conn, connInfo, ctx.Done())
}

// printDecoderErrors prints the integrity counters that grew since prev
func printDecoderErrors(prev, cur mavlink.DecoderStats) {
	timestamp := time.Now().Format("15:04:05.000")
	if n := cur.CRCErrors - prev.CRCErrors; n > 0 {
		fmt.Printf("[%s] \033[1;31mCRC ERROR:\033[0m %d candidate frame(s) failed the checksum\n", timestamp, n)
	}
	if n := cur.HeaderErrors - prev.HeaderErrors; n > 0 {
		fmt.Printf("[%s] \033[1;31mHEADER ERROR:\033[0m %d frame(s) with unsupported incompat flags\n", timestamp, n)
	}
	if n := cur.UnknownMessages - prev.UnknownMessages; n > 0 {
		fmt.Printf("[%s] \033[1;33mUNKNOWN MESSAGE:\033[0m %d frame(s) with unverifiable message ids\n", timestamp, n)
	}
	if n := cur.FramingErrors - prev.FramingErrors; n > 0 {
		fmt.Printf("[%s] \033[1;31mRESYNC:\033[0m skipped %d byte(s)\n", timestamp, cur.DiscardedBytes-prev.DiscardedBytes)
	}
}

// printValidationErrors prints the anomalies found in a frame
func printValidationErrors(frame *mavlink.Frame, anomalies []mavlink.ValidationError) {
	timestamp := frame.Timestamp.Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (#%d) sys=%d comp=%d\n",
		timestamp, frame.Name(), frame.MsgID, frame.SysID, frame.CompID)
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range anomalies {
		switch err.Type {
		case mavlink.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
		default:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m [%s]\n", i+1, err.Message, err.Type)
		}
		for k, v := range err.Details {
			fmt.Printf("    %s=%v\n", k, v)
		}
	}

	fmt.Printf("  >>> FRAME SUSPECT <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(conn link.Link, connInfo string) error {
	decoder := mavlink.NewDecoder()
	synchronized := false

	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	go func() {
		buf := make([]byte, 512)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				p.Send(linkErrMsg{err: err})
				return
			}

			for frame := range decoder.Frames(buf[:n]) {
				if !synchronized {
					// Bytes skipped before the first frame are start-up noise
					synchronized = true
					p.Send(syncMsg{baseline: decoder.Stats()})
				}
				p.Send(frameMsg{
					frame:     frame,
					anomalies: mavlink.ValidateFrame(frame),
					decoder:   decoder.Stats(),
				})
			}
			if synchronized {
				p.Send(decoderMsg(decoder.Stats()))
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(conn link.Link, connInfo string, done <-chan struct{}) error {
	fmt.Printf("Skyrelay - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := mavlink.NewDecoder()
	stats := mavlink.NewStatistics()

	synchronized := false
	var baseline, prev mavlink.DecoderStats

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking reads
	chunks := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 512)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				readErr <- err
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			chunks <- data
		}
	}()

	for {
		select {
		case data := <-chunks:
			for frame := range decoder.Frames(data) {
				if !synchronized {
					synchronized = true
					baseline = decoder.Stats()
					baseline.Frames = 0
					prev = baseline
					if baseline.DiscardedBytes > 0 {
						fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", baseline.DiscardedBytes)
					} else {
						fmt.Printf("[SYNC] Synchronized\n\n")
					}
				}

				cur := decoder.Stats()
				printDecoderErrors(prev, cur)
				prev = cur

				anomalies := mavlink.ValidateFrame(frame)
				stats.Update(frame, anomalies)
				if len(anomalies) > 0 {
					printValidationErrors(frame, anomalies)
				} else if showAll {
					fmt.Print(mavlink.FormatFrame(frame))
				}
			}
			if synchronized {
				cur := decoder.Stats()
				printDecoderErrors(prev, cur)
				prev = cur
				stats.SyncDecoder(subtractStats(cur, baseline))
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case err := <-readErr:
			fmt.Println()
			fmt.Print(stats.String())
			if errors.Is(err, link.ErrClosed) {
				return nil
			}
			log.Printf("Read error: %v", err)
			return err

		case <-done:
			conn.Close()
			done = nil
		}
	}
}

// subtractStats removes counters accumulated before synchronisation
func subtractStats(cur, base mavlink.DecoderStats) mavlink.DecoderStats {
	return mavlink.DecoderStats{
		Frames:          cur.Frames - base.Frames,
		CRCErrors:       cur.CRCErrors - base.CRCErrors,
		HeaderErrors:    cur.HeaderErrors - base.HeaderErrors,
		UnknownMessages: cur.UnknownMessages - base.UnknownMessages,
		FramingErrors:   cur.FramingErrors - base.FramingErrors,
		DiscardedBytes:  cur.DiscardedBytes - base.DiscardedBytes,
	}
}
