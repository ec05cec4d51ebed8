package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List your recent searches on a running service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := newAPIClient().History(context.Background(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No searches recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tOK\tDURATION\tQUERY")
		for _, e := range entries {
			ok := "yes"
			if !e.Success {
				ok = "no"
			}
			fmt.Fprintf(w, "%s\t%s\t%dms\t%s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), ok, e.DurationMS, e.Query)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().Int("limit", 0, "number of entries to show (server default when 0)")
	addClientFlags(historyCmd)
	rootCmd.AddCommand(historyCmd)
}
