package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func typeLine(m Model, s string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(Model)
}

func TestModel_SubmitAndReply(t *testing.T) {
	var got string
	m := sized(NewModel("mnemo", func(line string) Reply {
		got = line
		return Reply{Text: "echo " + line}
	}))

	m = typeLine(m, "hello")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	if !m.Waiting {
		t.Fatal("expected model to wait for a reply")
	}
	if cmd == nil {
		t.Fatal("expected a command that produces the reply")
	}
	if m.Input.Value() != "" {
		t.Errorf("input should be cleared, got %q", m.Input.Value())
	}

	msg := cmd()
	if got != "hello" {
		t.Errorf("respond called with %q", got)
	}

	next, _ = m.Update(msg)
	m = next.(Model)
	if m.Waiting {
		t.Error("expected waiting to end after reply")
	}
	joined := strings.Join(m.Lines, "\n")
	if !strings.Contains(joined, "hello") || !strings.Contains(joined, "echo hello") {
		t.Errorf("expected both lines in transcript, got %q", joined)
	}
}

func TestModel_IgnoresEmptyAndBusy(t *testing.T) {
	calls := 0
	m := sized(NewModel("mnemo", func(line string) Reply { calls++; return Reply{} }))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if cmd != nil || len(m.Lines) != 0 {
		t.Error("empty input should be ignored")
	}

	m.Waiting = true
	m = typeLine(m, "again")
	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("input should be ignored while waiting")
	}
	if calls != 0 {
		t.Errorf("respond should not have been called, got %d", calls)
	}
}

func TestModel_ExitReplyQuits(t *testing.T) {
	m := sized(NewModel("mnemo", nil))
	next, cmd := m.Update(ReplyMsg{Text: "Goodbye!", Exit: true})
	m = next.(Model)
	if !m.Quitting || cmd == nil {
		t.Error("expected exit reply to quit")
	}
	if !strings.Contains(m.View(), "Goodbye!") {
		t.Error("expected goodbye in view")
	}
}

func TestModel_StatusAndLines(t *testing.T) {
	m := NewModel("mnemo", nil)
	if !strings.Contains(m.View(), "Initializing") {
		t.Error("expected initializing view before sizing")
	}

	next, _ := m.Update(StatusMsg("Remembering..."))
	m = next.(Model)
	next, _ = m.Update(LineMsg{Text: "Welcome back, alice"})
	m = sized(next.(Model))

	if m.Status != "Remembering..." {
		t.Errorf("unexpected status %q", m.Status)
	}
	if !strings.Contains(m.View(), "Welcome back") {
		t.Error("lines added before sizing should be shown")
	}
}

func TestModel_CtrlCQuits(t *testing.T) {
	m := sized(NewModel("mnemo", nil))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !next.(Model).Quitting || cmd == nil {
		t.Error("expected ctrl+c to quit")
	}
}
