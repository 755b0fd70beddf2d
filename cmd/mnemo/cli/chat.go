package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mnemo/internal/session"
	"github.com/felixgeelhaar/mnemo/internal/ui"
	"github.com/felixgeelhaar/mnemo/internal/ui/tui"
)

var (
	chatName string
	chatTUI  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a conversation in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		obs := newObserver(cfg, os.Stderr)
		defer obs.Close()

		a, err := openApp(cfg, obs)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if chatTUI {
			return runTUI(ctx, a)
		}

		console := ui.NewConsole(os.Stdout, cfg.Log.Verbose)
		FollowEvents(a.runtime.Events(), console)
		r := NewRunner(obs, a.store, a.runtime, a.dispatcher, console)
		r.In = os.Stdin
		r.Prompt = os.Stdout
		if err := r.Run(ctx, chatName); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func runTUI(ctx context.Context, a *app) error {
	if chatName == "" {
		return errNameRequired
	}
	key, err := session.Key(chatName)
	if err != nil {
		return err
	}

	r := NewRunner(a.obs, a.store, a.runtime, a.dispatcher, nil)
	model := tui.NewModel("mnemo", func(line string) tui.Reply {
		return r.Respond(ctx, key, line)
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	r.UI = tui.NewTUI(program)
	FollowEvents(a.runtime.Events(), r.UI)

	errc := make(chan error, 1)
	go func() {
		_, err := r.Open(ctx, chatName)
		if err != nil {
			r.UI.Message(ui.SpeakerError, err.Error())
		}
		errc <- err
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("chat view failed: %w", err)
	}
	return <-errc
}

func init() {
	RootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatName, "name", "n", "", "Your name; sessions are keyed by it")
	chatCmd.Flags().BoolVar(&chatTUI, "tui", false, "Use the full screen chat view")
}
