// =============================================================================
// beads default configuration
// =============================================================================
// Provides sane defaults for every config section.
// =============================================================================
package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage:   DefaultStorageConfig(),
		Scheduler: DefaultSchedulerConfig(),
		Lease:     DefaultLeaseConfig(),
		Bus:       DefaultBusConfig(),
		Memory:    DefaultMemoryConfig(),
		Quality:   DefaultQualityConfig(),
		Registry:  DefaultRegistryConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultStorageConfig returns the default Storage Engine configuration.
// sqlite is the default driver so a fresh checkout runs with zero external
// dependencies.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Driver:           "sqlite",
		DSN:              "beads.db",
		MaxOpenConns:     25,
		MaxIdleConns:     5,
		ConnMaxLifetime:  5 * time.Minute,
		MaxTxRetries:     3,
		TxRetryBaseDelay: 100 * time.Millisecond,
		MigrationsTable:  "schema_migrations",
	}
}

// DefaultSchedulerConfig returns the default scheduler/work-loop configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		HeartbeatInterval:  10 * time.Second,
		StaleMultiplier:    3,
		ReaperInterval:     30 * time.Second,
		RetrySweepInterval: 15 * time.Second,
		ClaimBackoffMin:    100 * time.Millisecond,
		ClaimBackoffMax:    5 * time.Second,
		ClaimRetries:       3,
		ClaimRateLimit:     0,
	}
}

// DefaultLeaseConfig returns the default Lease Manager configuration.
func DefaultLeaseConfig() LeaseConfig {
	return LeaseConfig{
		Backend:         "sql",
		DefaultDuration: 5 * time.Minute,
		SweepInterval:   30 * time.Second,
	}
}

// DefaultBusConfig returns the default Message Bus configuration.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		Backend:             "sql",
		PollInterval:        2 * time.Second,
		ExpirySweepInterval: time.Minute,
	}
}

// DefaultMemoryConfig returns the default Memory Store configuration.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Dimension:                  0,
		MaxEntries:                 10000,
		SearchBatchSize:            100,
		EarlyTerminationSimilarity: 0.98,
		QueryCacheTTL:              5 * time.Minute,
		QueryCacheSize:             256,
	}
}

// DefaultQualityConfig returns the default Quality Engine configuration.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		CoverageGateEnabled:   false,
		CoverageGateThreshold: 80,
	}
}

// DefaultRegistryConfig returns the default Agent Registry configuration.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		StatsFlushInterval: 10 * time.Second,
	}
}

// DefaultRedisConfig returns the default Redis configuration, used only
// when Lease.Backend or Bus.Backend is set to "redis".
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "beads:",
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "beads",
		SampleRate:   0.1,
	}
}
