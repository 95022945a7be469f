package model

import "time"

// Config is the full runtime configuration. Values come from defaults,
// then ~/.lens/config.yaml, then LENS_* environment variables, then flags.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http" json:"http"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	LLM         LLMConfig         `yaml:"llm" json:"llm"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Budget      BudgetConfig      `yaml:"budget" json:"budget"`
	Output      OutputConfig      `yaml:"output" json:"output"`
}

// HTTPConfig controls the reference HTTP fetcher.
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	RespectRobots bool          `yaml:"respect_robots" json:"respect_robots"`
}

// ConcurrencyConfig bounds parallel work inside a phase.
type ConcurrencyConfig struct {
	FetchWorkers int `yaml:"fetch_workers" json:"fetch_workers"`
}

// CacheConfig controls the layered artifact cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Dir     string        `yaml:"dir" json:"dir"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
}

// LLMConfig configures the generative-extraction capability.
type LLMConfig struct {
	Provider  string `yaml:"provider" json:"provider"` // "openai", "ollama", "" (disabled)
	Model     string `yaml:"model" json:"model"`
	APIKey    string `yaml:"api_key" json:"-"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
	Timeout   int    `yaml:"timeout" json:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`
}

// StorageConfig locates the entity store.
type StorageConfig struct {
	Path string `yaml:"path" json:"path"`
}

// BudgetConfig caps spend on nonzero-cost sources per run.
type BudgetConfig struct {
	Ceiling float64 `yaml:"ceiling" json:"ceiling"` // 0 = unlimited
}

// OutputConfig controls CLI rendering.
type OutputConfig struct {
	Verbose bool   `yaml:"verbose" json:"verbose"`
	JSON    string `yaml:"json" json:"json"` // report path, "" = stdout summary only
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "lens/0.1 (+https://github.com/lens-kernel/lens)",
			MaxBodyBytes:  2_000_000,
			RespectRobots: true,
		},
		Concurrency: ConcurrencyConfig{
			FetchWorkers: 8,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "",
			TTL:     24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   30,
			MaxTokens: 1000,
		},
		Storage: StorageConfig{
			Path: "lens.db",
		},
		Budget: BudgetConfig{
			Ceiling: 0,
		},
		Output: OutputConfig{
			Verbose: false,
		},
	}
}
