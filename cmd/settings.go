package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/econsult/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the default system prompts of a running service",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the stored default system prompts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newAPIClient().GetSettings(context.Background())
		if err != nil {
			return err
		}
		printSettings(cmd, s)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <text>",
	Short: "Replace the default system prompts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newAPIClient().SaveSettings(context.Background(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Settings updated.")
		printSettings(cmd, s)
		return nil
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the default system prompts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newAPIClient().ResetSettings(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Settings reset to defaults.")
		printSettings(cmd, s)
		return nil
	},
}

func printSettings(cmd *cobra.Command, s *settings.Settings) {
	out := cmd.OutOrStdout()
	if s.DefaultSystemPrompts == "" {
		fmt.Fprintln(out, "(no default system prompts)")
	} else {
		fmt.Fprintln(out, s.DefaultSystemPrompts)
	}
	if s.LastUpdated != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "last updated: %s\n", *s.LastUpdated)
	}
}

func init() {
	addClientFlags(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd, settingsResetCmd)
	rootCmd.AddCommand(settingsCmd)
}
