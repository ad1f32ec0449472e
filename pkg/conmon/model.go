/*
Copyright 2018-2024 Craig Johnston <cjimti@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package conmon is a terminal dashboard for a running debug console. It
// polls the console's HTTP API and shows connected sessions and the tail of
// the log buffer.
package conmon

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	log "github.com/sirupsen/logrus"
	"github.com/txn2/debugcon/pkg/conapi"
	"k8s.io/apimachinery/pkg/util/duration"
)

const (
	// DefaultInterval is how often the API is polled
	DefaultInterval = time.Second

	// DefaultTail is how many log events are fetched per poll
	DefaultTail = 200

	sessionRows = 5
)

// Source is what the monitor reads; conapi.Client implements it
type Source interface {
	Health() (*conapi.HealthResponse, error)
	Sessions() ([]conapi.SessionInfo, error)
	Logs(count int) ([]conapi.LogEntry, error)
	ClearLogs() error
	Reintercept() (int, error)
}

// Options configures the monitor
type Options struct {
	Interval time.Duration
	Tail     int
	Title    string
}

const (
	colID        = "id"
	colRemote    = "remote"
	colUser      = "user"
	colState     = "state"
	colConnected = "connected"
	colLog       = "log"
	colDropped   = "dropped"
)

type tickMsg time.Time

type snapshotMsg struct {
	health   *conapi.HealthResponse
	sessions []conapi.SessionInfo
	logs     []conapi.LogEntry
	err      error
}

type actionMsg struct {
	status string
	err    error
}

// Model is the bubbletea model of the monitor
type Model struct {
	source Source
	opts   Options

	sessions table.Model
	logs     viewport.Model
	ready    bool
	follow   bool

	width  int
	height int

	health   *conapi.HealthResponse
	count    int
	entries  []conapi.LogEntry
	status   string
	err      error
	now      func() time.Time
}

// NewModel creates a monitor reading from source
func NewModel(source Source, opts Options) *Model {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Tail <= 0 {
		opts.Tail = DefaultTail
	}
	if opts.Title == "" {
		opts.Title = "debugcon monitor"
	}

	columns := []table.Column{
		table.NewColumn(colID, "ID", 10),
		table.NewFlexColumn(colRemote, "Remote", 2),
		table.NewFlexColumn(colUser, "User", 1),
		table.NewColumn(colState, "State", 15),
		table.NewColumn(colConnected, "Connected", 11),
		table.NewColumn(colLog, "Log", 5),
		table.NewColumn(colDropped, "Dropped", 9),
	}

	return &Model{
		source: source,
		opts:   opts,
		follow: true,
		now:    time.Now,
		sessions: table.New(columns).
			WithBaseStyle(lipgloss.NewStyle().Padding(0, 1)).
			BorderRounded().
			HeaderStyle(tableHeaderStyle).
			HighlightStyle(tableHighlightStyle).
			WithPageSize(sessionRows).
			WithFooterVisibility(false),
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetch polls the API once
func (m *Model) fetch() tea.Cmd {
	source, tail := m.source, m.opts.Tail
	return func() tea.Msg {
		health, err := source.Health()
		if err != nil {
			return snapshotMsg{err: err}
		}
		sessions, err := source.Sessions()
		if err != nil {
			return snapshotMsg{err: err}
		}
		logs, err := source.Logs(tail)
		if err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{health: health, sessions: sessions, logs: logs}
	}
}

func (m *Model) reintercept() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		n, err := source.Reintercept()
		return actionMsg{status: fmt.Sprintf("re-intercepted %d level(s)", n), err: err}
	}
}

func (m *Model) clearLogs() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		return actionMsg{status: "log buffer cleared", err: source.ClearLogs()}
	}
}

// Init starts polling
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick(m.opts.Interval))
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (model tea.Model, cmd tea.Cmd) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Monitor update panic recovered: %v", r)
			model = m
			cmd = nil
		}
	}()

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tickMsg:
		return m, tea.Batch(m.fetch(), tick(m.opts.Interval))
	case snapshotMsg:
		m.applySnapshot(msg)
	case actionMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
		}
		return m, m.fetch()
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case "r":
		return m.reintercept()
	case "c":
		return m.clearLogs()
	case "f":
		m.follow = !m.follow
		if m.follow && m.ready {
			m.logs.GotoBottom()
		}
	}

	if !m.ready {
		return nil
	}
	switch msg.String() {
	case "j", "down":
		m.logs.LineDown(1)
	case "k", "up":
		m.follow = false
		m.logs.LineUp(1)
	case "pgdown":
		m.logs.HalfViewDown()
	case "pgup":
		m.follow = false
		m.logs.HalfViewUp()
	case "g", "home":
		m.follow = false
		m.logs.GotoTop()
	case "G", "end":
		m.logs.GotoBottom()
	}
	return nil
}

// resize lays out the table above the log viewport
func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.sessions = m.sessions.WithTargetWidth(width)

	// header, two section titles and the status bar
	logsHeight := height - 4 - lipgloss.Height(m.sessions.View())
	if logsHeight < 3 {
		logsHeight = 3
	}

	if !m.ready {
		m.logs = viewport.New(width, logsHeight)
		m.ready = true
	} else {
		m.logs.Width = width
		m.logs.Height = logsHeight
	}
	m.renderLogs()
}

func (m *Model) applySnapshot(msg snapshotMsg) {
	m.err = msg.err
	if msg.err != nil {
		return
	}
	m.health = msg.health
	m.count = len(msg.sessions)
	m.entries = msg.logs

	rows := make([]table.Row, 0, len(msg.sessions))
	for _, s := range msg.sessions {
		logState := "off"
		if s.LogEnabled {
			logState = "on"
		}
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, table.NewRow(table.RowData{
			colID:        id,
			colRemote:    s.RemoteAddr,
			colUser:      s.Identity,
			colState:     s.State,
			colConnected: duration.HumanDuration(m.now().Sub(s.ConnectedAt)),
			colLog:       logState,
			colDropped:   strconv.FormatUint(s.Dropped, 10),
		}))
	}
	m.sessions = m.sessions.WithRows(rows)
	m.renderLogs()
}

func (m *Model) renderLogs() {
	if !m.ready {
		return
	}

	lines := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		level := levelStyle(e.Level).Render(fmt.Sprintf("%-5s", strings.ToUpper(e.Level)))
		stamp := mutedStyle.Render(e.Time.Local().Format("15:04:05"))
		lines = append(lines, stamp+" "+level+" "+e.Text)
	}
	m.logs.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.logs.GotoBottom()
	}
}

// View renders the dashboard
func (m *Model) View() string {
	if !m.ready {
		return "Connecting..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		sectionStyle.Render(fmt.Sprintf("Sessions (%d)", m.count)),
		m.sessions.View(),
		sectionStyle.Render(fmt.Sprintf("Logs (%d)", len(m.entries))),
		m.logs.View(),
		m.statusView(),
	)
}

func (m *Model) headerView() string {
	header := titleStyle.Render(m.opts.Title)
	if m.health != nil {
		header += mutedStyle.Render(fmt.Sprintf("  %s  up %s  buffered %d",
			m.health.Version, m.health.Uptime, m.health.Buffered))
	}
	return header
}

func (m *Model) statusView() string {
	if m.err != nil {
		return errorStyle.Render("error: " + m.err.Error())
	}
	help := "q quit  r reintercept  c clear  f follow  ↑/↓ scroll"
	if m.status != "" {
		return statusStyle.Render(m.status) + mutedStyle.Render("  "+help)
	}
	return mutedStyle.Render(help)
}
