// Package tui is the bubbletea chat view for `mnemo chat --tui`.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/mnemo/internal/ui"
)

// TUI forwards ui.UI calls into a running program.
type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) UpdateStatus(status string) {
	t.program.Send(StatusMsg(status))
}

func (t *TUI) Message(speaker, text string) {
	t.program.Send(LineMsg{Speaker: speaker, Text: text})
}

func (t *TUI) Log(msg string) {
	t.program.Send(LineMsg{Text: msg})
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))
)

// Reply is the outcome of one submitted line.
type Reply struct {
	Text    string
	IsError bool
	Exit    bool
}

// RespondFunc handles a submitted line. It runs off the UI goroutine.
type RespondFunc func(line string) Reply

type LineMsg struct {
	Speaker string
	Text    string
}

type StatusMsg string

type ReplyMsg Reply

type Model struct {
	Title    string
	Status   string
	Lines    []string
	Input    textinput.Model
	Viewport viewport.Model
	Waiting  bool
	Quitting bool
	Ready    bool
	Width    int
	Height   int

	respond RespondFunc
}

func NewModel(title string, respond RespondFunc) Model {
	in := textinput.New()
	in.Placeholder = "Write a message, /help for commands"
	in.Prompt = "> "
	in.CharLimit = 4000
	in.Focus()

	return Model{
		Title:   title,
		Status:  "Ready",
		Input:   in,
		respond: respond,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) appendLine(line string) {
	m.Lines = append(m.Lines, line)
	if m.Ready {
		m.Viewport.SetContent(strings.Join(m.Lines, "\n"))
		m.Viewport.GotoBottom()
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.Quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.Input.Value())
			if line == "" || m.Waiting {
				return m, nil
			}
			m.Input.Reset()
			m.appendLine(ui.Label(ui.SpeakerUser) + " " + line)
			m.Waiting = true
			m.Status = "Thinking..."
			respond := m.respond
			return m, func() tea.Msg { return ReplyMsg(respond(line)) }
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, msg.Height-6)
			m.Viewport.SetContent(strings.Join(m.Lines, "\n"))
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = msg.Height - 6
		}
		m.Input.Width = msg.Width - 4

	case ReplyMsg:
		m.Waiting = false
		m.Status = "Ready"
		speaker := ui.SpeakerBot
		if msg.IsError {
			speaker = ui.SpeakerError
		}
		m.appendLine(ui.Label(speaker) + " " + msg.Text)
		if msg.Exit {
			m.Quitting = true
			return m, tea.Quit
		}

	case LineMsg:
		if msg.Speaker == "" {
			m.appendLine(msg.Text)
		} else {
			m.appendLine(ui.Label(msg.Speaker) + " " + msg.Text)
		}

	case StatusMsg:
		m.Status = string(msg)
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initializing..."
	}

	header := titleStyle.Render(" " + m.Title + " ")
	status := infoStyle.Render(fmt.Sprintf(" %s ", m.Status))

	view := fmt.Sprintf("%s%s\n\n%s\n\n%s",
		header, status,
		m.Viewport.View(),
		m.Input.View())

	if m.Quitting {
		return view + "\n  Goodbye!\n"
	}

	return view
}
