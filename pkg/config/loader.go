package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for configuration loading.
var (
	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// envVarPattern matches ${VAR} and ${VAR:-default} references in YAML.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Initialize loads, expands, defaults, and validates configuration from path.
// This is the primary entry point for configuration loading.
func Initialize(path string) (*Config, error) {
	log := slog.With("config_path", path)
	log.Info("Initializing configuration")

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	log.Info("Configuration initialized",
		"providers", len(cfg.Providers.Entries),
		"active_provider", cfg.Providers.Active,
		"workflow_mode", cfg.Workflow.Mode)
	return cfg, nil
}

// Parse expands environment references, unmarshals, applies defaults, and
// validates. Exposed separately so tests can feed YAML directly.
func Parse(raw []byte) (*Config, error) {
	expanded := expandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration YAML: %w", err)
	}

	applyDefaults(&cfg)
	normalizeOrder(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} with environment values.
// Unset variables without a default expand to the empty string.
func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[3]
	})
}

// normalizeOrder completes Providers.Order: entries missing from the declared
// order are appended alphabetically so failover order is deterministic.
func normalizeOrder(cfg *Config) {
	seen := make(map[string]bool, len(cfg.Providers.Order))
	order := make([]string, 0, len(cfg.Providers.Entries))
	for _, name := range cfg.Providers.Order {
		if _, ok := cfg.Providers.Entries[name]; ok && !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(cfg.Providers.Entries))
	for name := range cfg.Providers.Entries {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	cfg.Providers.Order = append(order, rest...)
}

// validate checks cross-field consistency.
func validate(cfg *Config) error {
	if cfg.Workflow.Mode != "sequential" && cfg.Workflow.Mode != "parallel" {
		return fmt.Errorf("%w: workflow.mode must be sequential or parallel, got %q",
			ErrInvalidConfig, cfg.Workflow.Mode)
	}
	if cfg.Workflow.Parallelism < 1 {
		return fmt.Errorf("%w: workflow.parallelism must be >= 1", ErrInvalidConfig)
	}
	if cfg.Workflow.MaxRetries < 0 {
		return fmt.Errorf("%w: workflow.max_retries must be >= 0", ErrInvalidConfig)
	}

	if len(cfg.Providers.Entries) > 0 {
		if cfg.Providers.Active == "" {
			return fmt.Errorf("%w: providers.active is required when providers are configured",
				ErrInvalidConfig)
		}
		if _, ok := cfg.Providers.Entries[cfg.Providers.Active]; !ok {
			return fmt.Errorf("%w: active provider %q is not configured",
				ErrInvalidConfig, cfg.Providers.Active)
		}
	}
	for name, p := range cfg.Providers.Entries {
		switch p.Type {
		case "openai", "anthropic", "local":
		default:
			return fmt.Errorf("%w: provider %q has unknown type %q",
				ErrInvalidConfig, name, p.Type)
		}
		if p.Model == "" {
			return fmt.Errorf("%w: provider %q requires a model", ErrInvalidConfig, name)
		}
		if p.Type == "local" && p.Endpoint == "" {
			return fmt.Errorf("%w: local provider %q requires an endpoint",
				ErrInvalidConfig, name)
		}
		if p.RateLimit.MaxTokens < 0 || p.RateLimit.RefillRate < 0 {
			return fmt.Errorf("%w: provider %q has negative rate limit settings",
				ErrInvalidConfig, name)
		}
	}
	return nil
}
