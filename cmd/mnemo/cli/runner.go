package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/mnemo/internal/command"
	"github.com/felixgeelhaar/mnemo/internal/observe"
	"github.com/felixgeelhaar/mnemo/internal/runtime"
	"github.com/felixgeelhaar/mnemo/internal/session"
	"github.com/felixgeelhaar/mnemo/internal/store"
	"github.com/felixgeelhaar/mnemo/internal/transcript"
	"github.com/felixgeelhaar/mnemo/internal/ui"
	"github.com/felixgeelhaar/mnemo/internal/ui/tui"
)

// History is the read side of the runtime the runner greets users with.
type History interface {
	History(ctx context.Context, sessionID string) ([]transcript.Turn, error)
}

// Runner drives one terminal conversation.
type Runner struct {
	Observer   *observe.Observer
	Catalog    store.Storage
	History    History
	Dispatcher *command.Dispatcher
	UI         ui.UI
	In         io.Reader
	// Prompt, when set, receives the input prompt before each read.
	Prompt io.Writer
}

func NewRunner(obs *observe.Observer, catalog store.Storage, h History, d *command.Dispatcher, u ui.UI) *Runner {
	if u == nil {
		u = ui.SilentUI{}
	}
	return &Runner{
		Observer:   obs,
		Catalog:    catalog,
		History:    h,
		Dispatcher: d,
		UI:         u,
	}
}

// Open registers the session and shows either its history or a first-time
// greeting. It returns the session key.
func (r *Runner) Open(ctx context.Context, name string) (string, error) {
	key, err := session.Key(name)
	if err != nil {
		return "", err
	}
	display := strings.TrimSpace(name)

	if r.Catalog != nil {
		if _, _, err := r.Catalog.EnsureSession(key, display); err != nil {
			return "", fmt.Errorf("failed to record session: %w", err)
		}
	}

	turns, err := r.History.History(ctx, key)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		r.UI.Message(ui.SpeakerBot, fmt.Sprintf("Hello, %s!", display))
		r.UI.Message(ui.SpeakerBot, command.HelpText)
		r.UI.UpdateStatus(fmt.Sprintf("New session '%s' created.", display))
		return key, nil
	}

	r.UI.Log(fmt.Sprintf("Welcome back, %s! Here is your chat history:", display))
	for _, t := range turns {
		speaker := ui.SpeakerBot
		if t.Role == transcript.RoleUser {
			speaker = ui.SpeakerUser
		}
		r.UI.Message(speaker, t.Message)
	}
	r.UI.UpdateStatus(fmt.Sprintf("Existing session '%s' restored.", display))
	return key, nil
}

// Respond handles one input line for the session.
func (r *Runner) Respond(ctx context.Context, key, line string) tui.Reply {
	res, err := r.Dispatcher.Dispatch(ctx, key, line)
	if err != nil {
		r.Observer.Log().Warn().Str("session", key).Err(err).Msg("chat turn failed")
		return tui.Reply{Text: command.ErrorReply(err), IsError: true}
	}
	if r.Catalog != nil {
		if err := r.Catalog.TouchSession(key); err != nil {
			r.Observer.Log().Warn().Str("session", key).Err(err).Msg("failed to update session catalog")
		}
	}
	return tui.Reply{Text: res.Reply, Exit: res.Exit}
}

// Run asks for a name when none is given, opens the session and reads lines
// until /exit, end of input or cancellation.
func (r *Runner) Run(ctx context.Context, name string) error {
	scanner := bufio.NewScanner(r.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for strings.TrimSpace(name) == "" {
		r.prompt("What is your name? ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		name = scanner.Text()
	}

	key, err := r.Open(ctx, name)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.prompt("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reply := r.Respond(ctx, key, line)
		if reply.IsError {
			r.UI.Message(ui.SpeakerError, reply.Text)
			continue
		}
		r.UI.Message(ui.SpeakerBot, reply.Text)
		if reply.Exit {
			return nil
		}
	}
}

func (r *Runner) prompt(s string) {
	if r.Prompt != nil {
		fmt.Fprint(r.Prompt, s)
	}
}

// FollowEvents mirrors turn progress from bus into the UI status line.
func FollowEvents(bus *runtime.EventBus, u ui.UI) {
	bus.Subscribe(runtime.EventTurnStart, func(e runtime.Event) {
		u.UpdateStatus("Thinking...")
	})
	bus.Subscribe(runtime.EventMemoryInserted, func(e runtime.Event) {
		u.UpdateStatus(fmt.Sprintf("Remembered: %v", e.Data["summary"]))
	})
	bus.Subscribe(runtime.EventSearchFailed, func(e runtime.Event) {
		u.UpdateStatus("Recall unavailable, answering from recent turns")
	})
	bus.Subscribe(runtime.EventModeChanged, func(e runtime.Event) {
		u.UpdateStatus(fmt.Sprintf("Mode: %v", e.Data["mode"]))
	})
}

var errNameRequired = errors.New("--name is required with --tui")
