// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/agxmon/internal/logging"
	"github.com/Thermoquad/agxmon/pkg/agx"
	"github.com/Thermoquad/agxmon/pkg/console"
	"github.com/Thermoquad/agxmon/pkg/tegrastats"
)

var dashboardLogFile string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live terminal dashboard for AGX telemetry",
	Long: `Display a live dashboard with connection state, statistics, the latest
tegrastats snapshot, per-core CPU load and recent monitor events.

Console commands (status, data, stats, debug reconnect, ...) can be typed
into the input line at the bottom. Press Ctrl+C to exit.

Logs are discarded unless --log-file is given, so they do not corrupt the
display.`,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	addSessionFlags(dashboardCmd)
	dashboardCmd.Flags().StringVar(&dashboardLogFile, "log-file", "", "Write logs to this file")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	logger := logging.Discard()
	if dashboardLogFile != "" {
		f, err := os.OpenFile(dashboardLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		if logger, err = logging.New(f, level, logFormat); err != nil {
			return err
		}
	}
	slog.SetDefault(logger)

	s, err := openSession(logger)
	if err != nil {
		return err
	}
	defer s.Close()

	events := make(chan agx.Event, 64)
	s.Monitor.RegisterCallback(func(e agx.Event) {
		// Never block the monitor on a slow terminal
		select {
		case events <- e:
		default:
		}
	})

	m := newDashboardModel(s.Monitor, newConsole(s.Monitor), s.Config.URL(), events)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type dashboardModel struct {
	monitor  *agx.Monitor
	registry *console.Registry
	url      string
	events   <-chan agx.Event

	status    agx.ConnectionStatus
	stats     agx.Statistics
	snapshot  tegrastats.Snapshot
	dataValid bool
	started   bool

	input textinput.Model
	cores table.Model

	eventLog      []logEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

type dashTickMsg time.Time
type monitorEventMsg agx.Event
type startedMsg struct{ err error }

func newDashboardModel(m *agx.Monitor, registry *console.Registry, url string, events <-chan agx.Event) dashboardModel {
	ti := textinput.New()
	ti.Placeholder = "status"
	ti.Prompt = "agx> "
	ti.CharLimit = 64
	ti.Width = 40
	ti.Focus()

	cols := []table.Column{
		{Title: "Core", Width: 6},
		{Title: "Usage", Width: 7},
		{Title: "Freq", Width: 10},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(tegrastats.MaxCores+1))

	return dashboardModel{
		monitor:       m,
		registry:      registry,
		url:           url,
		events:        events,
		input:         ti,
		cores:         t,
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		dashTickCmd(),
		waitForEvent(m.events),
		startMonitor(m.monitor),
		textinput.Blink,
	)
}

func dashTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return dashTickMsg(t)
	})
}

func waitForEvent(events <-chan agx.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return monitorEventMsg(e)
	}
}

func startMonitor(mon *agx.Monitor) tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: mon.Start()}
	}
}

//////////////////////////////////////////////////////////////
// Update
//////////////////////////////////////////////////////////////

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEsc:
			m.input.SetValue("")
			return m, nil
		case tea.KeyEnter:
			return m.runConsoleLine()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-10, 10)

	case dashTickMsg:
		m.refresh()
		return m, dashTickCmd()

	case startedMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Start failed: %v", msg.err), true)
		} else {
			m.started = true
		}
		m.refresh()

	case monitorEventMsg:
		m.recordEvent(agx.Event(msg))
		m.refresh()
		return m, waitForEvent(m.events)
	}

	return m, nil
}

// runConsoleLine executes the input line and logs its output
func (m dashboardModel) runConsoleLine() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if line == "" {
		return m, nil
	}

	var out bytes.Buffer
	err := m.registry.Execute(line, &out)
	if errors.Is(err, errQuit) {
		m.quitting = true
		return m, tea.Quit
	}

	m.addLogEntry("> "+line, false)
	for _, l := range strings.Split(strings.TrimRight(out.String(), "\n"), "\n") {
		if l != "" {
			m.addLogEntry(l, false)
		}
	}
	if err != nil {
		m.addLogEntry(err.Error(), true)
	}
	m.refresh()
	return m, nil
}

func (m *dashboardModel) recordEvent(e agx.Event) {
	switch e.Type {
	case agx.EventDataReceived:
		// Shown through the snapshot panel
	case agx.EventError:
		m.addLogEntry(fmt.Sprintf("%s: %v", e.Type, e.Err), true)
	case agx.EventDisconnected:
		if e.Err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", e.Type, e.Err), true)
		} else {
			m.addLogEntry(e.Type.String(), false)
		}
	default:
		m.addLogEntry(e.Type.String(), false)
	}
}

// refresh pulls the current state from the monitor. Lock timeouts keep
// the previous values.
func (m *dashboardModel) refresh() {
	if status, err := m.monitor.Status(); err == nil {
		m.status = status
	}
	if stats, err := m.monitor.Statistics(); err == nil {
		m.stats = stats
	}
	if snap, err := m.monitor.LatestData(); err == nil {
		m.snapshot = snap
	}
	m.dataValid = m.monitor.IsDataValid()
	m.cores.SetRows(coreRows(&m.snapshot.CPU))
}

func (m *dashboardModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func coreRows(c *tegrastats.CPU) []table.Row {
	rows := make([]table.Row, 0, c.CoreCount)
	for i := 0; i < c.CoreCount && i < len(c.Cores); i++ {
		core := c.Cores[i]
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", core.ID),
			fmt.Sprintf("%d%%", core.UsagePercent),
			fmt.Sprintf("%d MHz", core.FreqMHz),
		})
	}
	return rows
}

// formatElapsed renders a duration as the two most significant units
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, mins)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func statusStyle(s agx.ConnectionStatus) lipgloss.Style {
	switch s {
	case agx.StatusConnected:
		return valueStyle
	case agx.StatusError:
		return errorStyle
	default:
		return warnStyle
	}
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("AGXMON - TEGRASTATS DASHBOARD"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Server: %s | Ctrl+C to quit", m.url)))
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.renderStatus()))
	s.WriteString("\n")

	telemetry := lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(m.renderSnapshot()),
		boxStyle.Render(m.cores.View()),
	)
	s.WriteString(telemetry)
	s.WriteString("\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	logHeight := max(m.height-lipgloss.Height(s.String())-5, 3)
	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(m.renderLog(logHeight)))
	s.WriteString("\n")
	s.WriteString(m.input.View())

	return s.String()
}

func (m dashboardModel) renderStatus() string {
	var b strings.Builder
	running := "stopped"
	if m.monitor.IsRunning() {
		running = "running"
	}
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("Status:"), statusStyle(m.status).Render(m.status.String()),
		labelStyle.Render("Worker:"), valueStyle.Render(running),
		labelStyle.Render("Uptime:"), valueStyle.Render(formatElapsed(m.stats.Uptime)),
	)
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Messages:"), valueStyle.Render(fmt.Sprintf("%d (%.2f/s)", m.stats.MessagesReceived, m.stats.MessageRate)),
		labelStyle.Render("Parse errors:"), m.counterStyle(m.stats.ParseErrors).Render(fmt.Sprintf("%d", m.stats.ParseErrors)),
		labelStyle.Render("Reconnects:"), m.counterStyle(m.stats.ReconnectAttempts).Render(fmt.Sprintf("%d", m.stats.ReconnectAttempts)),
		labelStyle.Render("Reliability:"), valueStyle.Render(fmt.Sprintf("%.1f%%", m.stats.Reliability)),
	)
	return b.String()
}

func (m dashboardModel) counterStyle(n uint64) lipgloss.Style {
	if n > 0 {
		return errorStyle
	}
	return valueStyle
}

func (m dashboardModel) renderSnapshot() string {
	snap := m.snapshot
	if snap.CapturedAt.IsZero() {
		return headerStyle.Render("(no telemetry yet)")
	}

	var b strings.Builder
	validity := valueStyle.Render("fresh")
	switch {
	case !snap.Valid:
		validity = errorStyle.Render("incomplete")
	case !m.dataValid:
		validity = warnStyle.Render("stale")
	}
	fmt.Fprintf(&b, "%s %s (%s)\n", labelStyle.Render("Sample:"), snap.Timestamp, validity)

	t := snap.Temperature
	fmt.Fprintf(&b, "%s CPU %.1f°C  SoC %.1f/%.1f/%.1f°C  TJ %.1f°C\n",
		labelStyle.Render("Temp:"), t.CPU, t.SoC0, t.SoC1, t.SoC2, t.TJ)

	ram := snap.Memory.RAM
	swap := snap.Memory.Swap
	fmt.Fprintf(&b, "%s RAM %d/%d MB  Swap %d/%d MB\n",
		labelStyle.Render("Memory:"), ram.UsedMB, ram.TotalMB, swap.UsedMB, swap.TotalMB)

	p := snap.Power
	fmt.Fprintf(&b, "%s GPU+SoC %d mW  CPU+CV %d mW  SYS 5V %d mW\n",
		labelStyle.Render("Power:"), p.GPUSoC.CurrentMW, p.CPUCV.CurrentMW, p.Sys5V.CurrentMW)

	fmt.Fprintf(&b, "%s GR3D %d%%", labelStyle.Render("GPU:"), snap.GPU.GR3DFreqPercent)
	return b.String()
}

func (m dashboardModel) renderLog(height int) string {
	if len(m.eventLog) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	width := uint(max(m.width-30, 20))
	start := max(len(m.eventLog)-height, 0)

	var b strings.Builder
	for _, entry := range m.eventLog[start:] {
		ts := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		msg := truncate.StringWithTail(entry.message, width, "…")
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", ts, errorStyle.Render("✗ "+msg))
		} else {
			fmt.Fprintf(&b, "%s %s\n", ts, warnStyle.Render(msg))
		}
	}
	return wordwrap.String(strings.TrimRight(b.String(), "\n"), max(m.width-4, 20))
}
