package cmd

import "github.com/spf13/cobra"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "econsult",
	Short: "Medical e-consult search over a vector database",
	Long: `econsult answers clinical questions from a curated document collection.
It retrieves candidate passages from a vector store, lets an LLM filter
them for relevance and summarises the remainder with source links. The
service runs as an HTTP API with a browser UI and can be exposed to AI
agents over MCP.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "econsult.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
