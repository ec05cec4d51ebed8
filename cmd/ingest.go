package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/econsult/internal/ingest"
	"github.com/ziadkadry99/econsult/internal/progress"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <glob>...",
	Short: "Load documents into the vector store",
	Long: `Reads JSON, JSONL, Markdown and text files matched by the given glob
patterns (doublestar syntax, e.g. "docs/**/*.md"), splits them into chunks
and stores their embeddings. Re-ingesting a file replaces its documents.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		defer logger.Sync()

		concurrency, _ := cmd.Flags().GetInt("concurrency")
		chunkSize, _ := cmd.Flags().GetInt("chunk-size")
		maxSize, _ := cmd.Flags().GetInt64("max-file-size")

		ctx := context.Background()
		embedder, err := createEmbedderFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		store, err := createStoreFromConfig(ctx, cfg, embedder, logger.Named("vectordb"))
		if err != nil {
			return fmt.Errorf("opening vector store: %w", err)
		}
		defer store.Close(ctx)

		in := ingest.New(store, ingest.Options{
			Concurrency: concurrency,
			ChunkSize:   chunkSize,
			MaxFileSize: maxSize,
		}, progress.NewReporter("Ingesting documents"), logger.Named("ingest"))

		result, err := in.Run(ctx, args)
		if err != nil {
			return err
		}
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  warning: %v\n", e)
		}
		total, _ := store.Count(ctx)
		fmt.Fprintf(os.Stderr, "Ingested %d documents from %d files (%d in store)\n", result.Documents, result.Files, total)
		if len(result.Errors) > 0 {
			return fmt.Errorf("%d of %d files failed", len(result.Errors), result.Files)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().Int("concurrency", 4, "files processed in parallel")
	ingestCmd.Flags().Int("chunk-size", ingest.DefaultChunkSize, "maximum characters per document chunk")
	ingestCmd.Flags().Int64("max-file-size", ingest.DefaultMaxFileSize, "skip files larger than this many bytes")
	rootCmd.AddCommand(ingestCmd)
}
