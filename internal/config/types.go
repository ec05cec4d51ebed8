package config

import "time"

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderAzure  ProviderType = "azure"
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// VectorBackend selects the vector store implementation.
type VectorBackend string

const (
	BackendChromem VectorBackend = "chromem"
	BackendMongo   VectorBackend = "mongo"
)

// Config is the top-level econsult configuration, corresponding to econsult.yml.
type Config struct {
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Database  DatabaseConfig  `yaml:"database" koanf:"database"`
	LLM       LLMConfig       `yaml:"llm" koanf:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Vector    VectorConfig    `yaml:"vector" koanf:"vector"`
	Search    SearchConfig    `yaml:"search" koanf:"search"`
	Prompts   PromptsConfig   `yaml:"prompts" koanf:"prompts"`
	Eureka    EurekaConfig    `yaml:"eureka" koanf:"eureka"`
	Tracing   TracingConfig   `yaml:"tracing" koanf:"tracing"`
	Logging   LoggingConfig   `yaml:"logging" koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host" koanf:"host"`
	Port           int      `yaml:"port" koanf:"port"`
	AppName        string   `yaml:"app_name" koanf:"app_name"`
	Development    bool     `yaml:"development" koanf:"development"`
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
	// PublicAPIBase is the base URL the browser UI calls. Empty means same origin.
	PublicAPIBase string `yaml:"public_api_base" koanf:"public_api_base"`
	// StaticDir serves the UI from disk instead of the embedded copy.
	StaticDir string `yaml:"static_dir" koanf:"static_dir"`
}

// DatabaseConfig holds the SQLite location for settings and search history.
type DatabaseConfig struct {
	Path string `yaml:"path" koanf:"path"`
}

// LLMConfig describes the chat model used for relevancy checks and summaries.
type LLMConfig struct {
	Provider   ProviderType `yaml:"provider" koanf:"provider"`
	Model      string       `yaml:"model" koanf:"model"`
	Deployment string       `yaml:"deployment" koanf:"deployment"`
	Endpoint   string       `yaml:"endpoint" koanf:"endpoint"`
	APIVersion string       `yaml:"api_version" koanf:"api_version"`
	// HeliconeBaseURL routes Azure traffic through a Helicone gateway when a
	// HELICONE_API_KEY is present.
	HeliconeBaseURL   string        `yaml:"helicone_base_url" koanf:"helicone_base_url"`
	RequestsPerMinute int           `yaml:"requests_per_minute" koanf:"requests_per_minute"`
	Breaker           BreakerConfig `yaml:"breaker" koanf:"breaker"`
}

// BreakerConfig tunes the circuit breaker that guards LLM calls.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" koanf:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests" koanf:"max_requests"`
	Interval         time.Duration `yaml:"interval" koanf:"interval"`
	Timeout          time.Duration `yaml:"timeout" koanf:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold" koanf:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests" koanf:"min_requests"`
}

// EmbeddingConfig describes how query and document vectors are produced.
type EmbeddingConfig struct {
	Provider   ProviderType `yaml:"provider" koanf:"provider"`
	Model      string       `yaml:"model" koanf:"model"`
	Dimensions int          `yaml:"dimensions" koanf:"dimensions"`
	OllamaURL  string       `yaml:"ollama_url" koanf:"ollama_url"`
}

// VectorConfig selects and configures the vector store.
type VectorConfig struct {
	Backend       VectorBackend `yaml:"backend" koanf:"backend"`
	ChromemDir    string        `yaml:"chromem_dir" koanf:"chromem_dir"`
	MongoURI      string        `yaml:"mongo_uri" koanf:"mongo_uri"`
	Database      string        `yaml:"database" koanf:"database"`
	Collection    string        `yaml:"collection" koanf:"collection"`
	Index         string        `yaml:"index" koanf:"index"`
	Path          string        `yaml:"path" koanf:"path"`
	NumCandidates int           `yaml:"num_candidates" koanf:"num_candidates"`
	Limit         int           `yaml:"limit" koanf:"limit"`
}

// SearchConfig bounds each stage of the search pipeline.
type SearchConfig struct {
	VectorTimeout       time.Duration `yaml:"vector_timeout" koanf:"vector_timeout"`
	RelevancyTimeout    time.Duration `yaml:"relevancy_timeout" koanf:"relevancy_timeout"`
	SummaryTimeout      time.Duration `yaml:"summary_timeout" koanf:"summary_timeout"`
	RelevancyMaxTokens  int           `yaml:"relevancy_max_tokens" koanf:"relevancy_max_tokens"`
	SummaryMaxTokens    int           `yaml:"summary_max_tokens" koanf:"summary_max_tokens"`
	Temperature         float64       `yaml:"temperature" koanf:"temperature"`
	RecordHistory       bool          `yaml:"record_history" koanf:"record_history"`
	SettingsMaxLength   int           `yaml:"settings_max_length" koanf:"settings_max_length"`
}

// PromptsConfig points at an optional directory of prompt overrides.
type PromptsConfig struct {
	Dir   string `yaml:"dir" koanf:"dir"`
	Watch bool   `yaml:"watch" koanf:"watch"`
}

// EurekaConfig controls registration with a Netflix Eureka server.
type EurekaConfig struct {
	Enabled           bool   `yaml:"enabled" koanf:"enabled"`
	ServerURL         string `yaml:"server_url" koanf:"server_url"`
	AppName           string `yaml:"app_name" koanf:"app_name"`
	InstanceHost      string `yaml:"instance_host" koanf:"instance_host"`
	InstancePort      int    `yaml:"instance_port" koanf:"instance_port"`
	Username          string `yaml:"username" koanf:"username"`
	Password          string `yaml:"password" koanf:"password"`
	HeartbeatSchedule string `yaml:"heartbeat_schedule" koanf:"heartbeat_schedule"`
}

// TracingConfig enables OpenTelemetry export.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled" koanf:"enabled"`
	Endpoint string `yaml:"endpoint" koanf:"endpoint"`
}

// LoggingConfig sets the zap logger level and encoder.
type LoggingConfig struct {
	Level       string `yaml:"level" koanf:"level"`
	Development bool   `yaml:"development" koanf:"development"`
}
