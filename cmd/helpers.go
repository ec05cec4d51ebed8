package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/client"
	"github.com/ziadkadry99/econsult/internal/config"
	"github.com/ziadkadry99/econsult/internal/embeddings"
	"github.com/ziadkadry99/econsult/internal/llm"
	"github.com/ziadkadry99/econsult/internal/logging"
	"github.com/ziadkadry99/econsult/internal/vectordb"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `econsult init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.New(level, cfg.Logging.Development)
}

// createEmbedderFromConfig creates the embedder shared by serve, ingest and
// mcp. Azure embeddings reuse the chat endpoint with the embedding model as
// deployment name.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	emb := cfg.Embedding
	switch emb.Provider {
	case config.ProviderAzure:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderAzure))
		if apiKey == "" {
			return nil, fmt.Errorf("AZURE_API_KEY environment variable is required for Azure embeddings")
		}
		if cfg.LLM.Endpoint == "" {
			return nil, fmt.Errorf("llm.endpoint (or AZURE_ENDPOINT) is required for Azure embeddings")
		}
		c := llm.NewOpenAIClient(llm.ClientOptions{
			APIKey:     apiKey,
			Endpoint:   cfg.LLM.Endpoint,
			APIVersion: cfg.LLM.APIVersion,
			Deployment: emb.Model,
		})
		return embeddings.NewOpenAIEmbedder(c, emb.Model, emb.Dimensions), nil
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		c := llm.NewOpenAIClient(llm.ClientOptions{APIKey: apiKey})
		return embeddings.NewOpenAIEmbedder(c, emb.Model, emb.Dimensions), nil
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(emb.Model, emb.Dimensions, emb.OllamaURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", emb.Provider)
	}
}

// createStoreFromConfig opens the configured vector backend.
func createStoreFromConfig(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder, logger *zap.Logger) (vectordb.VectorStore, error) {
	v := cfg.Vector
	switch v.Backend {
	case config.BackendChromem:
		return vectordb.NewChromemStore(embedder, v.ChromemDir)
	case config.BackendMongo:
		return vectordb.NewMongoStore(ctx, vectordb.MongoConfig{
			URI:           v.MongoURI,
			Database:      v.Database,
			Collection:    v.Collection,
			Index:         v.Index,
			Path:          v.Path,
			NumCandidates: v.NumCandidates,
			AppName:       cfg.Server.AppName,
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", v.Backend)
	}
}

// API client flags shared by the settings, search and history commands.
var (
	serverURL    string
	userIdentity string
	clusterID    string
)

func addClientFlags(c *cobra.Command) {
	c.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "base URL of the econsult service")
	c.PersistentFlags().StringVar(&userIdentity, "identity", "", "value sent as the pp-identity header")
	c.PersistentFlags().StringVar(&clusterID, "cluster", "", "value sent as the pp-cluster header")
}

// newAPIClient returns a client for the running service.
func newAPIClient() *client.Client {
	return client.New(serverURL, client.WithIdentity(userIdentity, clusterID))
}
