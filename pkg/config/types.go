// Package config loads and validates the maestro.yaml configuration file.
// Values are plain typed structs; the loader applies environment variable
// expansion, defaults, and a validation pass before anything else starts.
package config

import "time"

// Config is the root configuration consumed by main.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Providers ProvidersConfig           `yaml:"providers"`
	Workflow  WorkflowConfig            `yaml:"workflow"`
	Planner   PlannerConfig             `yaml:"planner"`
	Memory    MemoryConfig              `yaml:"memory"`
	Queue     QueueConfig               `yaml:"queue"`
	Agents    map[string]AgentOverrides `yaml:"agents"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Port             int      `yaml:"port"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// ProvidersConfig names the active provider and the per-provider entries.
// Registration order (and therefore failover order) follows Order; entries
// absent from Order are appended alphabetically.
type ProvidersConfig struct {
	Active  string                    `yaml:"active"`
	Order   []string                  `yaml:"order"`
	Entries map[string]ProviderConfig `yaml:"entries"`
}

// ProviderConfig describes one LLM provider backend.
type ProviderConfig struct {
	Type         string            `yaml:"type"` // openai, anthropic, local
	Model        string            `yaml:"model"`
	CheapModel   string            `yaml:"cheap_model,omitempty"` // used for cost-sensitive plans
	Endpoint     string            `yaml:"endpoint,omitempty"`    // required for local
	APIKeyEnv    string            `yaml:"api_key_env,omitempty"`
	Credentials  map[string]string `yaml:"credentials,omitempty"`
	TimeoutMs    int64             `yaml:"timeout_ms"`
	MaxRetries   int               `yaml:"max_retries"`
	RetryDelayMs int64             `yaml:"retry_delay_ms"`
	Temperature  float32           `yaml:"temperature,omitempty"`
	MaxTokens    int               `yaml:"max_tokens,omitempty"`
	RateLimit    RateLimitConfig   `yaml:"rate_limit"`
	Breaker      BreakerConfig     `yaml:"breaker"`
}

// RateLimitConfig configures the per-provider token bucket.
type RateLimitConfig struct {
	MaxTokens        float64 `yaml:"max_tokens"`
	RefillRate       float64 `yaml:"refill_rate"`
	RefillIntervalMs int64   `yaml:"refill_interval_ms"`
}

// RefillInterval returns the refill interval as a duration.
func (c RateLimitConfig) RefillInterval() time.Duration {
	return time.Duration(c.RefillIntervalMs) * time.Millisecond
}

// BreakerConfig configures the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int   `yaml:"failure_threshold"`
	SuccessThreshold int   `yaml:"success_threshold"`
	CooldownMs       int64 `yaml:"cooldown_ms"`
}

// Cooldown returns the open→half-open cooldown as a duration.
func (c BreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// WorkflowConfig holds workflow engine defaults.
type WorkflowConfig struct {
	Mode                 string `yaml:"mode"` // sequential or parallel
	Parallelism          int    `yaml:"parallelism"`
	MaxRetries           int    `yaml:"max_retries"`
	TaskTimeoutMs        int64  `yaml:"task_timeout_ms"`
	TimeoutMs            int64  `yaml:"timeout_ms"`
	ContinueOnFailure    bool   `yaml:"continue_on_failure"`
	CheckpointIntervalMs int64  `yaml:"checkpoint_interval_ms"`
	ReportDir            string `yaml:"report_dir"`
}

// PlannerConfig holds planner settings.
type PlannerConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// MemoryConfig holds the memory repository settings.
type MemoryConfig struct {
	DBPath  string      `yaml:"db_path"`
	SeedDir string      `yaml:"seed_dir"`
	Cache   CacheConfig `yaml:"cache"`
}

// CacheConfig configures the optional record cache.
type CacheConfig struct {
	Enabled bool  `yaml:"enabled"`
	Size    int   `yaml:"size"`
	TTLMs   int64 `yaml:"ttl_ms"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

// QueueConfig holds the plan dispatcher settings.
type QueueConfig struct {
	Workers        int   `yaml:"workers"`
	PollIntervalMs int64 `yaml:"poll_interval_ms"`
}

// PollInterval returns the dispatcher poll interval as a duration.
func (c QueueConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// AgentOverrides customizes a built-in agent binding.
type AgentOverrides struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
}
