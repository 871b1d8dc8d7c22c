package config

// Defaults applied after YAML parsing. Zero values mean "use the default".
const (
	DefaultPort                 = 8080
	DefaultWorkflowMode         = "sequential"
	DefaultParallelism          = 4
	DefaultMaxRetries           = 3
	DefaultTaskTimeoutMs        = 120_000
	DefaultCheckpointIntervalMs = 5_000
	DefaultReportDir            = "workflow/reports"
	DefaultPlanOutputDir        = "planner/output"
	DefaultMemoryDBPath         = "data/memory.db"
	DefaultSeedDir              = "data/seed/memory"
	DefaultCacheSize            = 256
	DefaultCacheTTLMs           = 60_000
	DefaultQueueWorkers         = 1
	DefaultPollIntervalMs       = 500

	DefaultProviderTimeoutMs    = 60_000
	DefaultProviderMaxRetries   = 2
	DefaultProviderRetryDelayMs = 1_000
	DefaultRateLimitMaxTokens   = 10
	DefaultRateLimitRefillRate  = 10
	DefaultRateLimitIntervalMs  = 1_000
	DefaultBreakerFailures      = 5
	DefaultBreakerSuccesses     = 2
	DefaultBreakerCooldownMs    = 60_000
)

// applyDefaults fills zero-valued fields in place.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Workflow.Mode == "" {
		cfg.Workflow.Mode = DefaultWorkflowMode
	}
	if cfg.Workflow.Parallelism == 0 {
		cfg.Workflow.Parallelism = DefaultParallelism
	}
	if cfg.Workflow.MaxRetries == 0 {
		cfg.Workflow.MaxRetries = DefaultMaxRetries
	}
	if cfg.Workflow.TaskTimeoutMs == 0 {
		cfg.Workflow.TaskTimeoutMs = DefaultTaskTimeoutMs
	}
	if cfg.Workflow.CheckpointIntervalMs == 0 {
		cfg.Workflow.CheckpointIntervalMs = DefaultCheckpointIntervalMs
	}
	if cfg.Workflow.ReportDir == "" {
		cfg.Workflow.ReportDir = DefaultReportDir
	}
	if cfg.Planner.OutputDir == "" {
		cfg.Planner.OutputDir = DefaultPlanOutputDir
	}
	if cfg.Memory.DBPath == "" {
		cfg.Memory.DBPath = DefaultMemoryDBPath
	}
	if cfg.Memory.SeedDir == "" {
		cfg.Memory.SeedDir = DefaultSeedDir
	}
	if cfg.Memory.Cache.Size == 0 {
		cfg.Memory.Cache.Size = DefaultCacheSize
	}
	if cfg.Memory.Cache.TTLMs == 0 {
		cfg.Memory.Cache.TTLMs = DefaultCacheTTLMs
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = DefaultQueueWorkers
	}
	if cfg.Queue.PollIntervalMs == 0 {
		cfg.Queue.PollIntervalMs = DefaultPollIntervalMs
	}

	for name, p := range cfg.Providers.Entries {
		if p.TimeoutMs == 0 {
			p.TimeoutMs = DefaultProviderTimeoutMs
		}
		if p.MaxRetries == 0 {
			p.MaxRetries = DefaultProviderMaxRetries
		}
		if p.RetryDelayMs == 0 {
			p.RetryDelayMs = DefaultProviderRetryDelayMs
		}
		if p.RateLimit.MaxTokens == 0 {
			p.RateLimit.MaxTokens = DefaultRateLimitMaxTokens
		}
		if p.RateLimit.RefillRate == 0 {
			p.RateLimit.RefillRate = DefaultRateLimitRefillRate
		}
		if p.RateLimit.RefillIntervalMs == 0 {
			p.RateLimit.RefillIntervalMs = DefaultRateLimitIntervalMs
		}
		if p.Breaker.FailureThreshold == 0 {
			p.Breaker.FailureThreshold = DefaultBreakerFailures
		}
		if p.Breaker.SuccessThreshold == 0 {
			p.Breaker.SuccessThreshold = DefaultBreakerSuccesses
		}
		if p.Breaker.CooldownMs == 0 {
			p.Breaker.CooldownMs = DefaultBreakerCooldownMs
		}
		cfg.Providers.Entries[name] = p
	}
}
