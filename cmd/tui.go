// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Thermoquad/skyrelay/pkg/mavlink"
	"github.com/Thermoquad/skyrelay/pkg/telemetry"
)

// Event log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *mavlink.Statistics
	vehicle       *telemetry.Extractor
	baseline      mavlink.DecoderStats // counters before the first frame
	lastDecoder   mavlink.DecoderStats
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	linkErr       error
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	frame     *mavlink.Frame
	anomalies []mavlink.ValidationError
	decoder   mavlink.DecoderStats
}
type decoderMsg mavlink.DecoderStats
type syncMsg struct {
	baseline mavlink.DecoderStats
}
type linkErrMsg struct {
	err error
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         mavlink.NewStatistics(),
		vehicle:       telemetry.NewExtractor(telemetry.DefaultModeTable(), time.Now),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.baseline = m.lastDecoder
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.baseline = msg.baseline
		m.baseline.Frames = 0
		m.lastDecoder = m.baseline
		if msg.baseline.DiscardedBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.baseline.DiscardedBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case frameMsg:
		m.observeDecoder(msg.decoder)
		m.stats.Update(msg.frame, msg.anomalies)
		m.vehicle.Apply(msg.frame)

		if len(msg.anomalies) > 0 {
			for _, err := range msg.anomalies {
				m.addLogEntry(fmt.Sprintf("%s: %s", msg.frame.Name(), err.Message), true)
			}
		} else if m.showAll {
			m.addLogEntry(fmt.Sprintf("%s sys=%d seq=%d (valid)", msg.frame.Name(), msg.frame.SysID, msg.frame.Seq), false)
		}

	case decoderMsg:
		m.observeDecoder(mavlink.DecoderStats(msg))

	case linkErrMsg:
		m.linkErr = msg.err
		m.addLogEntry(fmt.Sprintf("LINK: %v", msg.err), true)
	}

	return m, nil
}

// observeDecoder logs integrity failures since the last observation
func (m *model) observeDecoder(cur mavlink.DecoderStats) {
	if !m.synchronized {
		return
	}
	prev := m.lastDecoder
	if n := cur.CRCErrors - prev.CRCErrors; n > 0 {
		m.addLogEntry(fmt.Sprintf("CRC ERROR: %d candidate frame(s) failed the checksum", n), true)
	}
	if n := cur.HeaderErrors - prev.HeaderErrors; n > 0 {
		m.addLogEntry(fmt.Sprintf("HEADER ERROR: %d frame(s) with unsupported flags", n), true)
	}
	if n := cur.UnknownMessages - prev.UnknownMessages; n > 0 {
		m.addLogEntry(fmt.Sprintf("UNKNOWN MESSAGE: %d frame(s)", n), true)
	}
	if n := cur.FramingErrors - prev.FramingErrors; n > 0 {
		m.addLogEntry(fmt.Sprintf("RESYNC: skipped %d byte(s)", cur.DiscardedBytes-prev.DiscardedBytes), true)
	}
	m.lastDecoder = cur
	m.stats.SyncDecoder(subtractStats(cur, m.baseline))
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// topMessages returns the n most frequent message ids
func topMessages(byMessage map[uint32]uint64, n int) []uint32 {
	ids := make([]uint32, 0, len(byMessage))
	for id := range byMessage {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uint32) int {
		if c := cmp.Compare(byMessage[b], byMessage[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// orDash formats an optional value
func orDash[T any](v *T, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SKYRELAY - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'r' reset, 'q' quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.linkErr != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Link lost: %v", m.linkErr)))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.baseline.DiscardedBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.baseline.DiscardedBytes)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	m.stats.CalculateRates()
	ds := m.stats.Decoder
	totalErrors := ds.Errors() + m.stats.AnomalousFrames
	var validPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(humanize.Comma(int64(m.stats.TotalFrames))),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%s (%.1f%%)", humanize.Comma(int64(m.stats.ValidFrames)), validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(humanize.Comma(int64(totalErrors))),
	))

	if ds.CRCErrors > 0 || ds.HeaderErrors > 0 || ds.UnknownMessages > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("CRC:"), errorStyle.Render(fmt.Sprintf("%d", ds.CRCErrors)),
			statsLabelStyle.Render("Header:"), errorStyle.Render(fmt.Sprintf("%d", ds.HeaderErrors)),
			statsLabelStyle.Render("Unknown:"), warningStyle.Render(fmt.Sprintf("%d", ds.UnknownMessages)),
		))
	}
	if ds.FramingErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s %s\n",
			statsLabelStyle.Render("Resyncs:"), errorStyle.Render(fmt.Sprintf("%d", ds.FramingErrors)),
			headerStyle.Render(fmt.Sprintf("(%s skipped)", humanize.Bytes(ds.DiscardedBytes))),
		))
	}
	if m.stats.AnomalousFrames > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.AnomalousFrames)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Vehicle section (only shown after a heartbeat)
	v := m.vehicle.Snapshot()
	if v.HeartbeatReceived {
		s.WriteString(statsLabelStyle.Render("Latest Telemetry:"))
		s.WriteString("\n")

		armed := statsValueStyle.Render("DISARMED")
		if v.Armed {
			armed = errorStyle.Render("ARMED")
		}
		telemetryContent := strings.Builder{}
		telemetryContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Mode:"), statsValueStyle.Render(orDash(v.Mode, "%s")),
			statsLabelStyle.Render("Vehicle:"), statsValueStyle.Render(orDash(v.VehicleType, "%s")),
			statsLabelStyle.Render("State:"), armed,
		))
		telemetryContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Battery:"), statsValueStyle.Render(orDash(v.BatteryVoltage, "%.2f V")),
			statsLabelStyle.Render("GPS:"), statsValueStyle.Render(orDash(v.GPSSatellites, "%d sats")),
			statsLabelStyle.Render("Fix:"), statsValueStyle.Render(orDash(v.GPSFixType, "%d")),
		))
		telemetryContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
			statsLabelStyle.Render("Alt:"), statsValueStyle.Render(orDash(v.RelativeAltitude, "%.1f m")),
			statsLabelStyle.Render("Speed:"), statsValueStyle.Render(orDash(v.GroundSpeed, "%.1f m/s")),
			statsLabelStyle.Render("Heading:"), statsValueStyle.Render(orDash(v.Heading, "%.0f°")),
		))
		if v.LastHeartbeat != nil {
			telemetryContent.WriteString("\n" + headerStyle.Render("Last heartbeat "+humanize.Time(*v.LastHeartbeat)))
		}

		s.WriteString(boxStyle.Render(telemetryContent.String()))
		s.WriteString("\n\n")
	}

	// Message mix
	if len(m.stats.ByMessage) > 0 {
		parts := []string{}
		for _, id := range topMessages(m.stats.ByMessage, 6) {
			parts = append(parts, fmt.Sprintf("%s %s", mavlink.MessageName(id), statsValueStyle.Render(humanize.Comma(int64(m.stats.ByMessage[id])))))
		}
		s.WriteString(headerStyle.Render("Messages: ") + strings.Join(parts, "  "))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 20 // Reserve space for header, stats and telemetry
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
