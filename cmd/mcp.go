package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/econsult/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing the medical search pipeline and raw vector search as tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// MCP hosts capture stderr as plain text.
		cfg.Logging.Development = false
		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		defer logger.Sync()

		ctx := context.Background()
		p, err := buildPipeline(ctx, cfg, nil, logger)
		if err != nil {
			return err
		}
		defer p.close(ctx)

		mcpserver.Version = Version

		count, _ := p.store.Count(ctx)
		fmt.Fprintf(os.Stderr, "econsult MCP server started on stdio (backend=%s, documents=%d)\n", p.store.Name(), count)

		srv := mcpserver.NewServer(p.search, p.store, p.settings, logger.Named("mcp"))
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
