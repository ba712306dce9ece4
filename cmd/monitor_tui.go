// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Thermoquad/skyrelay/pkg/destination"
	"github.com/Thermoquad/skyrelay/pkg/router"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusDestList = iota
	focusAddInput
)

const staleAfter = 5 * time.Second // feed considered stale without pushes

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// destItem adapts destination.Info to list.Item
type destItem destination.Info

func (d destItem) Title() string { return d.Name }
func (d destItem) Description() string {
	info := destination.Info(d)
	state := "down"
	if info.Connected {
		state = "up"
	}
	return fmt.Sprintf("%s/%s %s sent=%s drop=%s",
		info.Addr(), info.Transport.Network(), state,
		humanize.SIWithDigits(float64(info.Sent), 1, ""), humanize.Comma(int64(info.Dropped)))
}
func (d destItem) FilterValue() string { return d.Name }

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	client   *apiClient
	connInfo string

	status    router.Status
	hasStatus bool
	lastPush  time.Time

	destList list.Model
	addInput textinput.Model
	focused  int

	errorLog      []errorLogEntry
	maxLogEntries int

	width    int
	height   int
	feedLost bool
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

// apiResultMsg reports the outcome of a control API call
type apiResultMsg struct {
	action  string
	message string
	err     error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(client *apiClient, connInfo string) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "name host[:port] [udp|tcp]"
	ti.CharLimit = 128
	ti.Width = 40

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	destList := list.New([]list.Item{}, delegate, 40, 10)
	destList.Title = "Destinations"
	destList.SetShowStatusBar(false)
	destList.SetShowHelp(false)
	destList.SetFilteringEnabled(false)

	return monitorModel{
		client:        client,
		connInfo:      connInfo,
		destList:      destList,
		addInput:      ti,
		focused:       focusDestList,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case monitorTickMsg:
		return m, monitorTickCmd()

	case feedStatusMsg:
		m.applyStatus(router.Status(msg))

	case feedLostMsg:
		m.feedLost = true
		m.addLogEntry(fmt.Sprintf("Feed lost: %v - reconnecting...", msg.err), true)

	case feedConnectedMsg:
		m.feedLost = false
		m.addLogEntry("Feed reconnected", false)

	case apiResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
		} else {
			m.addLogEntry(msg.message, false)
		}
	}

	if m.focused == focusDestList {
		var cmd tea.Cmd
		m.destList, cmd = m.destList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	switch msg.String() {
	case "tab", "shift+tab":
		m.toggleFocus()
		return m, nil
	}

	// The add field consumes everything else while focused
	if m.focused == focusAddInput {
		switch msg.String() {
		case "enter":
			return m.submitAdd()
		case "esc":
			m.toggleFocus()
			return m, nil
		}
		var cmd tea.Cmd
		m.addInput, cmd = m.addInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "s":
		return m, m.callAPI("start", func(ctx context.Context) (string, error) {
			r, err := m.client.Start(ctx, "", 0)
			return r.Message, err
		})

	case "x":
		return m, m.callAPI("stop", func(ctx context.Context) (string, error) {
			r, err := m.client.Stop(ctx)
			return r.Message, err
		})

	case "d", "delete":
		selected, ok := m.destList.SelectedItem().(destItem)
		if !ok {
			return m, nil
		}
		name := selected.Name
		return m, m.callAPI("remove "+name, func(ctx context.Context) (string, error) {
			r, err := m.client.RemoveDestination(ctx, name)
			return r.Message, err
		})

	case "a":
		m.toggleFocus()
		return m, nil
	}

	var cmd tea.Cmd
	m.destList, cmd = m.destList.Update(msg)
	return m, cmd
}

func (m *monitorModel) toggleFocus() {
	if m.focused == focusDestList {
		m.focused = focusAddInput
		m.addInput.Focus()
	} else {
		m.focused = focusDestList
		m.addInput.Blur()
	}
}

func (m monitorModel) submitAdd() (tea.Model, tea.Cmd) {
	cfg, err := parseDestination(strings.Fields(m.addInput.Value()))
	if err != nil {
		m.addLogEntry(fmt.Sprintf("add: %v", err), true)
		return m, nil
	}
	m.addInput.SetValue("")
	return m, m.callAPI("add "+cfg.Name, func(ctx context.Context) (string, error) {
		r, err := m.client.AddDestination(ctx, cfg)
		if err != nil || r.Destination == nil {
			return r.Message, err
		}
		return fmt.Sprintf("%s: %s", r.Message, r.Destination.String()), nil
	})
}

// callAPI runs a control API request outside the update loop
func (m monitorModel) callAPI(action string, fn func(context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
		defer cancel()
		message, err := fn(ctx)
		return apiResultMsg{action: action, message: message, err: err}
	}
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) applyStatus(st router.Status) {
	prev := m.status
	m.status = st
	m.lastPush = time.Now()

	if m.hasStatus {
		if prev.State != st.State {
			m.addLogEntry(fmt.Sprintf("Router %s -> %s", prev.State, st.State), st.State == router.Failed)
		}
		if !prev.HeartbeatReceived && st.HeartbeatReceived {
			m.addLogEntry("Heartbeat received", false)
		}
		if st.Error != "" && st.Error != prev.Error {
			m.addLogEntry("Router error: "+st.Error, true)
		}
	}
	m.hasStatus = true

	items := make([]list.Item, len(st.Destinations))
	for i, d := range st.Destinations {
		items[i] = destItem(d)
	}
	m.destList.SetItems(items)
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("SKYRELAY MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	switch {
	case m.feedLost:
		connStatus = warningStyle.Render("RECONNECTING...")
	case m.hasStatus && time.Since(m.lastPush) > staleAfter:
		connStatus = warningStyle.Render(fmt.Sprintf("STALE (%s)", humanize.Time(m.lastPush)))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit s=start x=stop a/Tab=add d=remove", connStatus)))
	s.WriteString("\n\n")

	if !m.hasStatus {
		s.WriteString(warningStyle.Render("Waiting for status..."))
		s.WriteString("\n\n")
		s.WriteString(m.renderEventLog(labelStyle, warningStyle, boxStyle))
		return s.String()
	}

	// Left: destinations | Right: router state
	leftWidth := 44
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 20 {
		rightWidth = 20
	}

	listStyle := boxStyle.Width(leftWidth)
	if m.focused == focusDestList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	var left strings.Builder
	left.WriteString(m.destList.View())
	left.WriteString("\n")
	if m.focused == focusAddInput {
		left.WriteString(m.addInput.View())
	} else {
		left.WriteString(headerStyle.Render("[a] add destination"))
	}
	destPanel := listStyle.Render(left.String())

	routerPanel := boxStyle.Width(rightWidth).Render(m.renderRouterPanel(labelStyle, valueStyle, errorStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, destPanel, " ", routerPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderTelemetry(labelStyle, valueStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(labelStyle, warningStyle, boxStyle))

	return s.String()
}

func (m monitorModel) renderRouterPanel(labelStyle, valueStyle, errorStyle lipgloss.Style) string {
	var s strings.Builder
	st := m.status

	stateStyle := valueStyle
	if st.State == router.Failed {
		stateStyle = errorStyle
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("State:"), stateStyle.Render(st.State.String())))
	if st.Device != "" {
		s.WriteString(fmt.Sprintf("%s %s @ %d\n", labelStyle.Render("Device:"), st.Device, st.BaudRate))
	}
	if st.StartedAt != nil {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Started:"), since(st.StartedAt)))
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Heartbeat:"), since(st.Stats.LastHeartbeat)))
	s.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s\n",
		labelStyle.Render("Rx:"), valueStyle.Render(humanize.Comma(int64(st.Stats.Received))),
		labelStyle.Render("Fwd:"), valueStyle.Render(humanize.Comma(int64(st.Stats.Forwarded))),
		labelStyle.Render("Up:"), valueStyle.Render(humanize.Comma(int64(st.Stats.Uplinked)))))

	errs := valueStyle.Render(humanize.Comma(int64(st.Stats.Errors)))
	if st.Stats.Errors > 0 {
		errs = errorStyle.Render(humanize.Comma(int64(st.Stats.Errors)))
	}
	s.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s",
		labelStyle.Render("Errors:"), errs,
		labelStyle.Render("Frame:"), valueStyle.Render(humanize.Comma(int64(st.Stats.FrameErrors))),
		labelStyle.Render("Dropped:"), valueStyle.Render(humanize.Comma(int64(st.Stats.Dropped)))))
	if st.Error != "" {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render(st.Error))
	}
	return s.String()
}

func (m monitorModel) renderTelemetry(labelStyle, valueStyle, boxStyle lipgloss.Style) string {
	t := m.status.Telemetry

	var content strings.Builder
	content.WriteString(labelStyle.Render("TELEMETRY"))
	content.WriteString(" | ")

	if !m.status.HeartbeatReceived {
		content.WriteString("No heartbeat yet")
		return boxStyle.Width(m.width - 4).Render(content.String())
	}

	armed := "DISARMED"
	if t.Armed {
		armed = "ARMED"
	}
	content.WriteString(fmt.Sprintf("%s %s %s  ", labelStyle.Render("Mode:"), valueStyle.Render(orDash(t.Mode, "%s")), armed))
	content.WriteString(fmt.Sprintf("%s %s  ", labelStyle.Render("Bat:"), valueStyle.Render(orDash(t.BatteryVoltage, "%.2fV")+" "+orDash(t.BatteryRemaining, "%d%%"))))
	content.WriteString(fmt.Sprintf("%s %s  ", labelStyle.Render("Alt:"), valueStyle.Render(orDash(t.RelativeAltitude, "%.1fm"))))
	content.WriteString(fmt.Sprintf("%s %s  ", labelStyle.Render("GS:"), valueStyle.Render(orDash(t.GroundSpeed, "%.1fm/s"))))
	content.WriteString(fmt.Sprintf("%s %s  ", labelStyle.Render("Hdg:"), valueStyle.Render(orDash(t.Heading, "%.0f"))))
	content.WriteString(fmt.Sprintf("%s fix %s / %s sats",
		labelStyle.Render("GPS:"), orDash(t.GPSFixType, "%d"), orDash(t.GPSSatellites, "%d")))

	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m monitorModel) renderEventLog(labelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}
	startIdx := len(m.errorLog) - logHeight

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *monitorModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.destList.SetSize(42, listHeight)
}
