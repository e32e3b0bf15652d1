// Package config loads and hot-reloads the distillation core's
// configuration, grounded on the teacher's internal/config: a
// viper-backed Manager over a YAML file, DISTILL_-prefixed env
// overrides, and fsnotify-driven reload callbacks.
package config

// Config holds the core's runtime configuration.
type Config struct {
	LLM   LLMConfig   `mapstructure:"llm" yaml:"llm"`
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	Defra DefraConfig `mapstructure:"defra" yaml:"defra"`
}

// LLMConfig describes the OpenAI-compatible chat-completions endpoint the
// Structured-LLM Client (internal/llm) talks to, and the three model
// tiers the pipelines select between (§4: extraction/filtering/reasoning).
type LLMConfig struct {
	// BaseURL is the chat-completions endpoint root, e.g.
	// "https://openrouter.ai/api/v1".
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// APIKey is the bearer token, normally an ${ENV_VAR} reference.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	Models       ModelTiers `mapstructure:"models" yaml:"models"`
	RateLimit    float64    `mapstructure:"rate_limit" yaml:"rate_limit"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// ModelTiers names the three model identifiers the pipelines route
// between. The reasoning tier is reserved for clustering, expansion,
// reconstruction, chapter compression, and book assembly (§4); extraction
// and filtering cover the higher-volume, lower-difficulty calls.
type ModelTiers struct {
	Extraction string `mapstructure:"extraction" yaml:"extraction"`
	Filtering  string `mapstructure:"filtering" yaml:"filtering"`
	Reasoning  string `mapstructure:"reasoning" yaml:"reasoning"`
}

// StoreConfig points the core at its document store (internal/store).
type StoreConfig struct {
	// URL is the DefraDB base URL, e.g. "http://localhost:9181". Empty
	// selects the in-memory store (internal/store/memstore), used for
	// tests and local experimentation without a running DefraDB.
	URL string `mapstructure:"url" yaml:"url"`
}

// DefraConfig configures the optional locally-managed DefraDB container
// (internal/store/defra.DockerManager).
type DefraConfig struct {
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	Image         string `mapstructure:"image" yaml:"image"`
	Port          string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults; API keys
// default to ${ENV_VAR} references rather than literal secrets.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			APIKey:  "${OPENROUTER_API_KEY}",
			Models: ModelTiers{
				Extraction: "anthropic/claude-haiku-4.5",
				Filtering:  "anthropic/claude-haiku-4.5",
				Reasoning:  "anthropic/claude-opus-4.6",
			},
			RateLimit:      60,
			TimeoutSeconds: 120,
		},
		Store: StoreConfig{
			URL: "http://localhost:9181",
		},
		Defra: DefraConfig{
			ContainerName: "distill-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
	}
}
