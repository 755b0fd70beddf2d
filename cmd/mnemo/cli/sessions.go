package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mnemo/internal/command"
	"github.com/felixgeelhaar/mnemo/internal/fsutil"
	"github.com/felixgeelhaar/mnemo/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recently used first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		return listSessions(cmd.OutOrStdout(), s)
	},
}

func listSessions(out io.Writer, s store.Storage) error {
	sessions, err := s.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions yet.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tLAST USED")
	for _, sess := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", sess.Key, sess.DisplayName, sess.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Print a session's full transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			turns, err := a.runtime.History(ctx, args[0])
			if err != nil {
				return err
			}
			if len(turns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(empty)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), command.FormatTranscript(turns))
			return nil
		})
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear [key]",
	Short: "Delete a session's transcript, index and catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := clearSession(ctx, a, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s cleared.\n", args[0])
			return nil
		})
	},
}

func clearSession(ctx context.Context, a *app, key string) error {
	if err := a.runtime.ClearSession(ctx, key); err != nil {
		return err
	}
	if err := a.store.DeleteSession(key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

var exportDir string

var sessionsExportCmd = &cobra.Command{
	Use:   "export [key]",
	Short: "Write a session's full transcript to a text file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			dir := exportDir
			if dir == "" {
				dir = a.cfg.ExportDir()
			}
			path, err := exportSession(ctx, a, args[0], dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "History saved to %s\n", path)
			return nil
		})
	},
}

func exportSession(ctx context.Context, a *app, key, dir string) (string, error) {
	turns, err := a.runtime.History(ctx, key)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("session %s has no history", key)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := command.ExportPath(filepath.Clean(dir), key)
	if err := fsutil.WriteFileAtomic(path, []byte(command.FormatTranscript(turns)+"\n")); err != nil {
		return "", err
	}
	return path, nil
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
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
	return fn(cmd.Context(), a)
}

func init() {
	RootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsClearCmd, sessionsExportCmd)
	sessionsExportCmd.Flags().StringVarP(&exportDir, "dir", "d", "", "Target directory (default ~/.mnemo/exports)")
}
