package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mnemo/internal/credential"
	"github.com/felixgeelhaar/mnemo/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stored settings and API keys",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Keys ending in api_key, token or secret are stored encrypted.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(s *store.SQLiteStore, v *credential.Vault) error {
			if err := v.Set(args[0], args[1]); err != nil {
				return fmt.Errorf("failed to set config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved: %s\n", args[0])
			return nil
		})
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(s *store.SQLiteStore, v *credential.Vault) error {
			val, err := v.Display(args[0])
			if err != nil {
				return err
			}
			if val == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), val)
			}
			return nil
		})
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configuration values, secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(s *store.SQLiteStore, v *credential.Vault) error {
			return listConfig(cmd.OutOrStdout(), s, v)
		})
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Remove a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(s *store.SQLiteStore, v *credential.Vault) error {
			if err := s.DeleteConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration removed: %s\n", args[0])
			return nil
		})
	},
}

func listConfig(out io.Writer, s store.Storage, v *credential.Vault) error {
	all, err := s.ListConfig()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val, err := v.Display(k)
		if err != nil {
			val = "(unreadable: " + err.Error() + ")"
		}
		fmt.Fprintf(out, "%s = %s\n", k, val)
	}
	return nil
}

func withVault(fn func(s *store.SQLiteStore, v *credential.Vault) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, v, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s, v)
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd, configDeleteCmd)
}
