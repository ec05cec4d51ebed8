package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nested keys: ECONSULT_SERVER__PORT -> server.port.
const EnvPrefix = "ECONSULT_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (ECONSULT_*) and the legacy variables
// the deployment sets directly (AZURE_*, MONGODB_*, EUREKA_*, DEVELOPMENT).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	applyLegacyEnv(cfg)

	return cfg, nil
}

// envKeyValue maps ECONSULT_SERVER__ALLOWED_ORIGINS=a,b to
// server.allowed_origins=[a b].
func envKeyValue(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if strings.HasSuffix(key, "allowed_origins") {
		return key, splitAndTrim(value)
	}
	return key, value
}

// applyLegacyEnv fills blanks from the variable names used by the existing
// deployment manifests. Values already present in the file or in ECONSULT_*
// overrides win.
func applyLegacyEnv(cfg *Config) {
	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = os.Getenv(name)
		}
	}
	fill(&cfg.LLM.Endpoint, "AZURE_ENDPOINT")
	fill(&cfg.LLM.Deployment, "AZURE_DEPLOYMENT")
	fill(&cfg.Vector.MongoURI, "MONGODB_URI")
	fill(&cfg.Eureka.Username, "EUREKA_USERNAME")
	fill(&cfg.Eureka.Password, "EUREKA_PASSWORD")

	if v := os.Getenv("AZURE_MODEL_NAME"); v != "" && cfg.LLM.Provider == ProviderAzure {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("AZURE_API_VERSION"); v != "" {
		cfg.LLM.APIVersion = v
	}
	if v := os.Getenv("MONGODB_DATABASE"); v != "" {
		cfg.Vector.Database = v
	}
	if v := os.Getenv("MONGODB_COLLECTION"); v != "" {
		cfg.Vector.Collection = v
	}
	if v := os.Getenv("MONGODB_SEARCH_INDEX"); v != "" {
		cfg.Vector.Index = v
	}
	positive := func(dst *int, name string) {
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name))); err == nil && n > 0 {
			*dst = n
		}
	}
	positive(&cfg.Vector.NumCandidates, "VECTOR_SEARCH_NUM_CANDIDATES")
	positive(&cfg.Vector.Limit, "VECTOR_SEARCH_LIMIT")
	if strings.EqualFold(os.Getenv("DEVELOPMENT"), "true") {
		cfg.Server.Development = true
	}
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[ProviderType]bool{
	ProviderAzure:  true,
	ProviderOpenAI: true,
	ProviderOllama: true,
}

var validBackends = map[VectorBackend]bool{
	BackendChromem: true,
	BackendMongo:   true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("invalid llm.provider %q: must be one of azure, openai, ollama", c.LLM.Provider)
	}
	if c.LLM.Model == "" && c.LLM.Deployment == "" {
		return fmt.Errorf("llm.model or llm.deployment is required")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute must be non-negative")
	}
	if b := c.LLM.Breaker; b.Enabled && (b.FailureThreshold <= 0 || b.FailureThreshold > 1) {
		return fmt.Errorf("llm.breaker.failure_threshold must be in (0, 1]")
	}

	if !validProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding.provider %q", c.Embedding.Provider)
	}

	if !validBackends[c.Vector.Backend] {
		return fmt.Errorf("invalid vector.backend %q: must be one of chromem, mongo", c.Vector.Backend)
	}
	if c.Vector.Backend == BackendMongo && c.Vector.MongoURI == "" {
		return fmt.Errorf("vector.mongo_uri (or MONGODB_URI) is required for the mongo backend")
	}
	if c.Vector.Limit <= 0 {
		return fmt.Errorf("vector.limit must be positive")
	}
	if c.Vector.NumCandidates < c.Vector.Limit {
		return fmt.Errorf("vector.num_candidates must be at least vector.limit")
	}

	s := c.Search
	if s.VectorTimeout <= 0 || s.RelevancyTimeout <= 0 || s.SummaryTimeout <= 0 {
		return fmt.Errorf("search timeouts must be positive")
	}
	if s.RelevancyMaxTokens <= 0 || s.SummaryMaxTokens <= 0 {
		return fmt.Errorf("search max tokens must be positive")
	}
	if s.SettingsMaxLength <= 0 {
		return fmt.Errorf("search.settings_max_length must be positive")
	}

	if c.Eureka.Enabled && c.Eureka.ServerURL == "" {
		return fmt.Errorf("eureka.server_url is required when eureka is enabled")
	}
	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderAzure:
		return "AZURE_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

// HeliconeKeyEnvVar holds the optional Helicone gateway key.
const HeliconeKeyEnvVar = "HELICONE_API_KEY"
