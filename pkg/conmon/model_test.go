package conmon

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/txn2/debugcon/pkg/conapi"
)

type fakeSource struct {
	err         error
	sessions    []conapi.SessionInfo
	logs        []conapi.LogEntry
	cleared     int
	reintercept int
	tail        int
}

func (f *fakeSource) Health() (*conapi.HealthResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &conapi.HealthResponse{Status: "healthy", Version: "v9", Uptime: "1m0s", Buffered: len(f.logs)}, nil
}

func (f *fakeSource) Sessions() ([]conapi.SessionInfo, error) { return f.sessions, nil }

func (f *fakeSource) Logs(count int) ([]conapi.LogEntry, error) {
	f.tail = count
	return f.logs, nil
}

func (f *fakeSource) ClearLogs() error {
	f.cleared++
	f.logs = nil
	return nil
}

func (f *fakeSource) Reintercept() (int, error) {
	f.reintercept++
	return 2, nil
}

func newTestModel(t *testing.T, src *fakeSource) *Model {
	t.Helper()
	lipgloss.SetColorProfile(termenv.Ascii)
	m := NewModel(src, Options{Tail: 10})
	m.now = func() time.Time { return time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC) }
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

// TestSnapshot tests that a poll fills the table and the log view
func TestSnapshot(t *testing.T) {
	src := &fakeSource{
		sessions: []conapi.SessionInfo{{
			ID:          "0123456789abcdef",
			RemoteAddr:  "10.0.0.7:51000",
			Identity:    "alice",
			State:       "active",
			ConnectedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			LogEnabled:  true,
		}},
		logs: []conapi.LogEntry{
			{Time: time.Now(), Level: "warn", Text: "disk almost full"},
		},
	}
	m := newTestModel(t, src)

	m.Update(m.fetch()())
	if src.tail != 10 {
		t.Errorf("Expected a tail of 10, got %d", src.tail)
	}

	view := m.View()
	for _, want := range []string{"01234567", "alice", "10.0.0.7:51000", "5m", "disk almost full", "WARN", "Sessions (1)", "v9"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "89abcdef") {
		t.Error("Expected a shortened session ID")
	}
}

// TestSnapshotError tests that poll errors are shown and keep old data
func TestSnapshotError(t *testing.T) {
	src := &fakeSource{logs: []conapi.LogEntry{{Level: "info", Text: "kept"}}}
	m := newTestModel(t, src)
	m.Update(m.fetch()())

	src.err = errors.New("connection refused")
	m.Update(m.fetch()())

	view := m.View()
	if !strings.Contains(view, "error: connection refused") {
		t.Errorf("Expected the error in the status bar:\n%s", view)
	}
	if !strings.Contains(view, "kept") {
		t.Error("Expected previous logs to stay visible")
	}
}

// TestKeys tests the action keys
func TestKeys(t *testing.T) {
	src := &fakeSource{logs: []conapi.LogEntry{{Level: "info", Text: "x"}}}
	m := newTestModel(t, src)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	m.Update(cmd())
	if src.reintercept != 1 {
		t.Errorf("Expected one reintercept call, got %d", src.reintercept)
	}
	if !strings.Contains(m.View(), "re-intercepted 2 level(s)") {
		t.Error("Expected the reintercept status")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	m.Update(cmd())
	if src.cleared != 1 {
		t.Errorf("Expected one clear call, got %d", src.cleared)
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")})
	if cmd != nil || m.follow {
		t.Error("Expected f to turn following off")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

// TestViewBeforeSize tests the placeholder before the first window size
func TestViewBeforeSize(t *testing.T) {
	m := NewModel(&fakeSource{}, Options{})
	if m.View() != "Connecting..." {
		t.Errorf("Unexpected view %q", m.View())
	}
	if m.opts.Interval != DefaultInterval || m.opts.Tail != DefaultTail {
		t.Errorf("Unexpected defaults %+v", m.opts)
	}
}
