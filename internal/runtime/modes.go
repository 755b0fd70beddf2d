package runtime

import (
	"fmt"
	"strings"
	"sync"
)

// Mode selects the persona (system instruction) used for generation.
type Mode string

const (
	ModeDefault    Mode = "default"
	ModeMentor     Mode = "mentor"
	ModeFunny      Mode = "funny"
	ModeReflection Mode = "reflection"
)

// AllModes lists the modes in display order.
var AllModes = []Mode{ModeDefault, ModeMentor, ModeFunny, ModeReflection}

var instructions = map[Mode]string{
	ModeDefault: "You are a smart and responsive chatbot who helps the user and takes the earlier context of the conversation into account.",
	ModeMentor: "You are an experienced mentor, coach and teacher who helps the user grow, learn, cope with difficulties " +
		"and find their way in life. You speak respectfully and inspiringly, but simply. You share knowledge, explain step by step " +
		"and give examples. Your job is not only to answer but to help the person grow and think more broadly. " +
		"If a question is unclear, ask again and help the user work it out.",
	ModeFunny:      "You are a cheerful chatbot who answers questions with humour and jokes. Keep the conversation light and easy.",
	ModeReflection: "You are a reflective chatbot who helps the user analyse their thoughts and feelings. Ask questions that deepen understanding.",
}

var greetings = map[Mode]string{
	ModeDefault:    "Default mode activated. Ready to help!",
	ModeMentor:     "Mentor mode activated. Ready to teach and support you!",
	ModeFunny:      "Funny mode activated. Ready to joke and entertain!",
	ModeReflection: "Reflection mode activated. Ready to help you analyse and understand!",
}

// ParseMode accepts a mode name in any case.
func ParseMode(name string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := instructions[m]; !ok {
		return "", fmt.Errorf("unknown mode %q, available modes: %s", name, ModeNames())
	}
	return m, nil
}

// ModeNames returns the comma separated mode list.
func ModeNames() string {
	names := make([]string, len(AllModes))
	for i, m := range AllModes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func (m Mode) Instruction() string {
	if s, ok := instructions[m]; ok {
		return s
	}
	return instructions[ModeDefault]
}

func (m Mode) Greeting() string {
	return greetings[m]
}

// Modes maps sessions to their current mode. It lives only in process
// memory, so every session starts in ModeDefault after a restart.
type Modes struct {
	mu    sync.RWMutex
	modes map[string]Mode
}

func NewModes() *Modes {
	return &Modes{modes: make(map[string]Mode)}
}

// Get returns the session's mode, ModeDefault when unset.
func (m *Modes) Get(sessionID string) Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if mode, ok := m.modes[sessionID]; ok {
		return mode
	}
	return ModeDefault
}

func (m *Modes) Set(sessionID string, mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[sessionID] = mode
}

func (m *Modes) Reset(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.modes, sessionID)
}
