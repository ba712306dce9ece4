// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/skyrelay/pkg/publisher"
	"github.com/Thermoquad/skyrelay/pkg/router"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for a running skyrelay service",
	Long: `Monitor and control a running skyrelay serve via an interactive terminal UI.

The TUI follows the live status feed and uses the control API for commands.

Features:
  - Router state, counters and vehicle telemetry
  - Destination list with per-destination counters
  - Start/stop routing (s / x)
  - Add destinations ("name host[:port] [udp|tcp]") and remove them (d)
  - Event logging
  - Automatic reconnection when the feed drops

Tab switches between the destination list and the add field.

When stdout is not a terminal, one status line is printed per update instead.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// feedManager handles the status feed lifecycle and reconnection
type feedManager struct {
	base string
	conn *websocket.Conn
	mu   sync.Mutex
	send func(tea.Msg)
	done chan struct{}
}

type feedStatusMsg router.Status

type feedLostMsg struct {
	err error
}

type feedConnectedMsg struct{}

func (fm *feedManager) setConn(conn *websocket.Conn) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.conn = conn
}

// close stops the manager and unblocks a pending read
func (fm *feedManager) close() {
	close(fm.done)
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.conn != nil {
		fm.conn.Close()
	}
}

func (fm *feedManager) stopping() bool {
	select {
	case <-fm.done:
		return true
	default:
		return false
	}
}

// readerLoop reads the feed with automatic reconnection
func (fm *feedManager) readerLoop() {
	for {
		err := fm.readFeed()
		if fm.stopping() {
			return
		}
		fm.send(feedLostMsg{err: err})

		if !fm.reconnect() {
			return // Shutdown requested during reconnect
		}
	}
}

// readFeed forwards status pushes until the connection fails
func (fm *feedManager) readFeed() error {
	fm.mu.Lock()
	conn := fm.conn
	fm.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	for {
		var env publisher.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			conn.Close()
			return err
		}
		if env.Type == publisher.TypeStatus && env.Data != nil {
			fm.send(feedStatusMsg(*env.Data))
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (fm *feedManager) reconnect() bool {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-fm.done:
			return false
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
		conn, err := dialFeed(ctx, fm.base)
		cancel()
		if err == nil {
			fm.setConn(conn)
			if fm.stopping() {
				conn.Close()
				return false
			}
			fm.send(feedConnectedMsg{})
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	conn, err := dialFeed(ctx, serverURL)
	cancel()
	if err != nil {
		return err
	}

	fm := &feedManager{base: serverURL, conn: conn, done: make(chan struct{})}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return runMonitorLines(fm)
	}

	m := initialMonitorModel(newAPIClient(serverURL), serverURL)
	p := tea.NewProgram(m, tea.WithAltScreen())
	fm.send = p.Send

	go fm.readerLoop()

	_, err = p.Run()
	fm.close()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runMonitorLines prints one line per status push until interrupted
func runMonitorLines(fm *feedManager) error {
	updates := make(chan tea.Msg, 16)
	fm.send = func(msg tea.Msg) {
		select {
		case updates <- msg:
		case <-fm.done:
		}
	}
	go fm.readerLoop()
	defer fm.close()

	for msg := range updates {
		switch msg := msg.(type) {
		case feedStatusMsg:
			fmt.Println(statusLine(router.Status(msg)))
		case feedLostMsg:
			fmt.Fprintf(os.Stderr, "feed lost: %v (reconnecting)\n", msg.err)
		case feedConnectedMsg:
			fmt.Fprintln(os.Stderr, "feed reconnected")
		}
	}
	return nil
}

// statusLine renders a single line summary of a status push
func statusLine(st router.Status) string {
	t := st.Telemetry
	return fmt.Sprintf("%s state=%s rx=%s fwd=%s err=%s dests=%d mode=%s bat=%s alt=%s",
		time.Now().Format("15:04:05"),
		st.State,
		humanize.Comma(int64(st.Stats.Received)),
		humanize.Comma(int64(st.Stats.Forwarded)),
		humanize.Comma(int64(st.Stats.Errors)),
		len(st.Destinations),
		orDash(t.Mode, "%s"),
		orDash(t.BatteryVoltage, "%.2fV"),
		orDash(t.RelativeAltitude, "%.1fm"),
	)
}
