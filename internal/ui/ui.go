// Package ui defines how chat front ends present a conversation.
package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Speakers passed to UI.Message.
const (
	SpeakerUser  = "you"
	SpeakerBot   = "bot"
	SpeakerError = "error"
)

type UI interface {
	UpdateStatus(status string)
	Message(speaker, text string)
	Log(msg string)
}

type SilentUI struct{}

func (s SilentUI) UpdateStatus(status string)   {}
func (s SilentUI) Message(speaker, text string) {}
func (s SilentUI) Log(msg string)               {}

var (
	UserStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	BotStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	ErrorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000"))
	StatusStyle = lipgloss.NewStyle().Faint(true)
)

// Label renders the speaker prefix of a chat line.
func Label(speaker string) string {
	switch speaker {
	case SpeakerUser:
		return UserStyle.Render("You:")
	case SpeakerError:
		return ErrorStyle.Render("Error:")
	default:
		return BotStyle.Render("Bot:")
	}
}

// Console prints the conversation to a terminal stream.
type Console struct {
	out     io.Writer
	verbose bool
}

func NewConsole(out io.Writer, verbose bool) *Console {
	return &Console{out: out, verbose: verbose}
}

// UpdateStatus is only shown in verbose mode.
func (c *Console) UpdateStatus(status string) {
	if c.verbose {
		fmt.Fprintln(c.out, StatusStyle.Render("["+status+"]"))
	}
}

func (c *Console) Message(speaker, text string) {
	fmt.Fprintf(c.out, "%s %s\n", Label(speaker), text)
}

func (c *Console) Log(msg string) {
	fmt.Fprintln(c.out, msg)
}
