package config

import "time"

// DefaultAppName is the name the service reports to actuator and Eureka.
const DefaultAppName = "econsult-ai-service"

// providerPresets holds the chat and embedding model chosen for each provider
// when the config leaves them blank.
var providerPresets = map[ProviderType]struct {
	Model          string
	EmbeddingModel string
	Dimensions     int
}{
	ProviderAzure:  {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small", Dimensions: 1536},
	ProviderOpenAI: {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small", Dimensions: 1536},
	ProviderOllama: {Model: "llama3", EmbeddingModel: "nomic-embed-text", Dimensions: 768},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			AppName:        DefaultAppName,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Path: "data/econsult.db",
		},
		LLM: LLMConfig{
			Provider:          ProviderAzure,
			Model:             "gpt-4o-mini",
			APIVersion:        "2023-05-15",
			HeliconeBaseURL:   "https://oai.hconeai.com/",
			RequestsPerMinute: 120,
			Breaker: BreakerConfig{
				Enabled:          true,
				MaxRequests:      5,
				Interval:         30 * time.Second,
				Timeout:          60 * time.Second,
				FailureThreshold: 0.8,
				MinRequests:      5,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:   ProviderOpenAI,
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Vector: VectorConfig{
			Backend:       BackendChromem,
			ChromemDir:    "data/vectordb",
			Database:      "econsult",
			Collection:    "documents",
			Index:         "default",
			Path:          "content_vector",
			NumCandidates: 150,
			Limit:         10,
		},
		Search: SearchConfig{
			VectorTimeout:      30 * time.Second,
			RelevancyTimeout:   30 * time.Second,
			SummaryTimeout:     60 * time.Second,
			RelevancyMaxTokens: 1000,
			SummaryMaxTokens:   2000,
			Temperature:        0.1,
			RecordHistory:      true,
			SettingsMaxLength:  2000,
		},
		Eureka: EurekaConfig{
			ServerURL:         "http://localhost:8761/eureka/",
			AppName:           DefaultAppName,
			InstanceHost:      "localhost",
			InstancePort:      8000,
			HeartbeatSchedule: "@every 30s",
		},
		Tracing: TracingConfig{
			Endpoint: "localhost:4317",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// PresetModels returns the default chat model, embedding model and embedding
// dimensions for a provider. Unknown providers fall back to Azure.
func PresetModels(p ProviderType) (model, embeddingModel string, dims int) {
	preset, ok := providerPresets[p]
	if !ok {
		preset = providerPresets[ProviderAzure]
	}
	return preset.Model, preset.EmbeddingModel, preset.Dimensions
}
