// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/yncastat/pkg/receiver"
	"github.com/Thermoquad/yncastat/pkg/ynca"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	volumeBarWidth = 40
	volumeJump     = 0.05 // [ and ] move the level this much
	maxLogEntries  = 100
)

// Focus states
const (
	focusSourceList = iota
	focusCommandInput
	focusCount
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// source is one selectable receiver input
type source struct {
	id   string
	name string
}

// Implement list.Item interface
func (s source) Title() string       { return s.name }
func (s source) Description() string { return s.id }
func (s source) FilterValue() string { return s.name }

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	connMgr  *connectionManager
	connInfo string

	// One receiver per zone, same order as connMgr.receivers
	zones  []string
	states map[string]receiver.State
	active int

	sourceList   list.Model
	commandInput textinput.Model
	focusedField int

	stats    *ynca.Statistics
	eventLog []logEntry

	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type zoneUpdateMsg struct {
	zone  string
	state receiver.State
}

type protocolErrorMsg struct {
	err error
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "@MAIN:VOL=?"
	ti.CharLimit = ynca.MaxLineLength
	ti.Width = 30

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	sourceList := list.New([]list.Item{}, delegate, 30, 10)
	sourceList.Title = "Inputs"
	sourceList.SetShowStatusBar(false)
	sourceList.SetShowHelp(false)
	sourceList.SetFilteringEnabled(false)

	zones := make([]string, len(connMgr.receivers))
	for i, rx := range connMgr.receivers {
		zones[i] = rx.Zone()
	}

	return controlModel{
		connMgr:      connMgr,
		connInfo:     connInfo,
		zones:        zones,
		states:       make(map[string]receiver.State),
		sourceList:   sourceList,
		commandInput: ti,
		focusedField: focusSourceList,
		stats:        connMgr.session.Stats(),
		eventLog:     make([]logEntry, 0),
		width:        80,
		height:       24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		// Redraw for the statistics rates
		return m, controlTickCmd()

	case zoneUpdateMsg:
		old, seen := m.states[msg.zone]
		m.states[msg.zone] = msg.state
		if seen && old.Power != msg.state.Power {
			m.addLogEntry(fmt.Sprintf("%s: power %s", ynca.FormatSubunit(msg.zone), onOff(msg.state.Power)), false)
		}
		if msg.zone == m.activeZone() {
			m.updateSourceList()
		}

	case protocolErrorMsg:
		var perr *ynca.ProtocolError
		if errors.As(msg.err, &perr) {
			m.addLogEntry(fmt.Sprintf("Receiver replied %s", perr.Line), true)
		} else {
			m.addLogEntry(msg.err.Error(), true)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected - refreshing state", false)
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		return m.handleEnter()
	}

	// The command entry takes every other key
	if m.focusedField == focusCommandInput {
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		return m, cmd
	}

	rx := m.activeReceiver()
	state := m.states[m.activeZone()]

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "p":
		if state.Power {
			rx.TurnOff()
			m.addLogEntry("Sent power standby", false)
		} else {
			rx.TurnOn()
			m.addLogEntry("Sent power on", false)
		}

	case "m":
		rx.Mute(!state.Muted)
		m.addLogEntry(fmt.Sprintf("Sent mute %s", onOff(!state.Muted)), false)

	case "+", "=":
		rx.VolumeUp()

	case "-", "_":
		rx.VolumeDown()

	case "]":
		rx.SetVolumeLevel(rx.VolumeLevel() + volumeJump)

	case "[":
		rx.SetVolumeLevel(rx.VolumeLevel() - volumeJump)

	case "z":
		m.active = (m.active + 1) % len(m.zones)
		m.updateSourceList()
		m.addLogEntry(fmt.Sprintf("Controlling %s", ynca.FormatSubunit(m.activeZone())), false)

	case "r":
		rx.Refresh()
		m.addLogEntry("Refreshing", false)

	default:
		var cmd tea.Cmd
		m.sourceList, cmd = m.sourceList.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m controlModel) cycleFocus(delta int) controlModel {
	m.focusedField = (m.focusedField + delta + focusCount) % focusCount
	if m.focusedField == focusCommandInput {
		m.commandInput.Focus()
	} else {
		m.commandInput.Blur()
	}
	return m
}

func (m controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	if m.focusedField == focusCommandInput {
		return m.sendRawCommand()
	}

	item, ok := m.sourceList.SelectedItem().(source)
	if !ok {
		return m, nil
	}
	if err := m.activeReceiver().SelectSource(item.id); err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}
	m.addLogEntry(fmt.Sprintf("Selected %s", item.name), false)
	return m, nil
}

func (m controlModel) sendRawCommand() (tea.Model, tea.Cmd) {
	command, err := parseRawCommand(m.commandInput.Value())
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}

	m.connMgr.session.Send(command)
	m.addLogEntry(fmt.Sprintf("Sent %s", command.Line()), false)
	m.commandInput.SetValue("")
	return m, nil
}

// parseRawCommand accepts "@MAIN:VOL=?" as well as "MAIN:VOL=?"
func parseRawCommand(input string) (ynca.Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return ynca.Command{}, fmt.Errorf("empty command")
	}
	if input[0] != ynca.FramePrefix {
		input = string(ynca.FramePrefix) + input
	}

	frame, err := ynca.ParseLine(input)
	if err != nil || frame == nil {
		return ynca.Command{}, fmt.Errorf("not a command: %q (want @SUBUNIT:FUNCTION=VALUE)", input)
	}

	command := ynca.Command{
		Subunit:   strings.ToUpper(frame.Subunit()),
		Function:  strings.ToUpper(frame.Function()),
		Parameter: frame.Value(),
	}
	if err := command.Validate(); err != nil {
		return ynca.Command{}, err
	}
	return command, nil
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
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
	s.WriteString(titleStyle.Render("YNCASTAT CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | ctrl+c=quit Tab=switch", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (inputs) | right panel (zone)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusSourceList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	sourcePanel := listStyle.Render(m.sourceList.View())

	zonePanel := boxStyle.Width(rightWidth).Render(m.renderZonePanel(labelStyle, valueStyle, headerStyle, errorStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, sourcePanel, " ", zonePanel))
	s.WriteString("\n")

	// Command entry
	inputStyle := boxStyle
	if m.focusedField == focusCommandInput {
		inputStyle = focusedBoxStyle
	}
	s.WriteString(inputStyle.Width(m.width - 4).Render(labelStyle.Render("Command: ") + m.commandInput.View()))
	s.WriteString("\n")

	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n")

	s.WriteString(m.renderEventLog(labelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderZonePanel(labelStyle, valueStyle, headerStyle, errorStyle lipgloss.Style) string {
	var s strings.Builder

	zone := m.activeZone()
	rx := m.activeReceiver()
	state, seen := m.states[zone]

	s.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Zone:"), valueStyle.Render(rx.Name())))
	if len(m.zones) > 1 {
		s.WriteString(headerStyle.Render(fmt.Sprintf("  (%d/%d, z=next)", m.active+1, len(m.zones))))
	}
	s.WriteString("\n\n")

	if !seen {
		s.WriteString(headerStyle.Render("Waiting for the receiver..."))
		return s.String()
	}

	powerStyle := valueStyle
	if !state.Power {
		powerStyle = headerStyle
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Power: "), powerStyle.Render(powerName(state.Power))))

	muteText := valueStyle.Render("Off")
	if state.Muted {
		muteText = errorStyle.Render("MUTED")
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Mute:  "), muteText))

	input := "-"
	if state.Input != "" {
		input = rx.DisplayName(state.Input)
	}
	s.WriteString(fmt.Sprintf("%s %s\n\n", labelStyle.Render("Input: "), valueStyle.Render(input)))

	s.WriteString(fmt.Sprintf("%s %s %s\n",
		labelStyle.Render("Volume:"),
		renderVolumeBar(rx.VolumeLevel(), volumeBarWidth, valueStyle, headerStyle),
		valueStyle.Render(fmt.Sprintf("%.1f dB", state.Volume))))

	s.WriteString("\n")
	s.WriteString(headerStyle.Render("p=power m=mute +/-=step [/]=5% r=refresh"))
	return s.String()
}

// renderVolumeBar draws level (0..1) as a filled gauge
func renderVolumeBar(level float64, width int, filledStyle, emptyStyle lipgloss.Style) string {
	level = max(0, min(1, level))
	filled := int(level*float64(width) + 0.5)
	return filledStyle.Render(strings.Repeat("█", filled)) +
		emptyStyle.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %3.0f%%", level*100)
}

func (m controlModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	snap := m.stats.Snapshot()

	errText := valueStyle.Render("0")
	if n := snap.ErrorFrames(); n > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%d", n))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", snap.Frames)),
		labelStyle.Render("Rejected:"), errText,
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", snap.CommandsSent)),
		labelStyle.Render("Keep-alives:"), valueStyle.Render(fmt.Sprintf("%d", snap.KeepAlivesSent)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f lines/s", snap.ReceiveRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(labelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := min(8, len(m.eventLog))
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

func (m controlModel) activeZone() string {
	return m.zones[m.active]
}

func (m controlModel) activeReceiver() *receiver.Receiver {
	return m.connMgr.receivers[m.active]
}

func (m *controlModel) updateSourceList() {
	rx := m.activeReceiver()
	ids := rx.SourceList()
	items := make([]list.Item, len(ids))
	for i, id := range ids {
		items[i] = source{id: id, name: rx.DisplayName(id)}
	}
	m.sourceList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	listHeight := max(m.height/3, 5)
	m.sourceList.SetSize(28, listHeight)
}

func powerName(on bool) string {
	if on {
		return "On"
	}
	return "Standby"
}

func onOff(on bool) string {
	if on {
		return ynca.ValueOn
	}
	return ynca.ValueOff
}
