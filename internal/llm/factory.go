package llm

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/config"
)

// NewProvider builds the chat provider described by cfg, wrapped in the
// configured rate limiter and circuit breaker. API keys come from the
// environment.
func NewProvider(cfg config.LLMConfig, logger *zap.Logger) (Provider, error) {
	base, err := newBaseProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	var p Provider = base
	if cfg.RequestsPerMinute > 0 {
		p = NewRateLimitedProvider(p, cfg.RequestsPerMinute, logger)
	}
	if cfg.Breaker.Enabled {
		p = NewBreakerProvider(p, BreakerSettings{
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         cfg.Breaker.Interval,
			Timeout:          cfg.Breaker.Timeout,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			MinRequests:      cfg.Breaker.MinRequests,
		}, logger)
	}
	return p, nil
}

func newBaseProvider(cfg config.LLMConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderAzure:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderAzure))
		if apiKey == "" {
			return nil, fmt.Errorf("AZURE_API_KEY environment variable is not set")
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("llm.endpoint (or AZURE_ENDPOINT) is required for the azure provider")
		}
		client := NewOpenAIClient(ClientOptions{
			APIKey:          apiKey,
			Endpoint:        cfg.Endpoint,
			APIVersion:      cfg.APIVersion,
			Deployment:      cfg.Deployment,
			HeliconeKey:     os.Getenv(config.HeliconeKeyEnvVar),
			HeliconeBaseURL: cfg.HeliconeBaseURL,
			Model:           cfg.Model,
		})
		return NewOpenAIProvider(client, "azure", cfg.Model), nil

	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		return NewOpenAIProvider(NewOpenAIClient(ClientOptions{APIKey: apiKey}), "openai", cfg.Model), nil

	case config.ProviderOllama:
		host := cfg.Endpoint
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaProvider(host, cfg.Model, logger), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider)
	}
}
