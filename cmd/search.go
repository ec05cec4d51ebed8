package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <question>",
	Short: "Ask a running service a question",
	Long:  `Sends the question to POST /api/search and prints the summary with its sources.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instructions, _ := cmd.Flags().GetString("instructions")
		asJSON, _ := cmd.Flags().GetBool("json")

		resp, err := newAPIClient().Search(context.Background(), strings.Join(args, " "), instructions)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		if !resp.Success {
			fmt.Fprintln(out, resp.ErrorMessage)
			return nil
		}
		fmt.Fprintln(out, resp.LLMOutput.Summary)
		if len(resp.LLMOutput.SourcesUsed) > 0 {
			fmt.Fprintln(out, "\nBronnen:")
			for _, src := range resp.LLMOutput.SourcesUsed {
				fmt.Fprintf(out, "  - %s\n    %s\n", src.Title, src.URL)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().String("instructions", "", "extra instructions from the doctor for this question")
	searchCmd.Flags().Bool("json", false, "print the raw JSON response")
	addClientFlags(searchCmd)
	rootCmd.AddCommand(searchCmd)
}
