package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration for a beads coordinator.
type Config struct {
	Storage   StorageConfig   `yaml:"storage" env:"STORAGE"`
	Scheduler SchedulerConfig `yaml:"scheduler" env:"SCHEDULER"`
	Lease     LeaseConfig     `yaml:"lease" env:"LEASE"`
	Bus       BusConfig       `yaml:"bus" env:"BUS"`
	Memory    MemoryConfig    `yaml:"memory" env:"MEMORY"`
	Quality   QualityConfig   `yaml:"quality" env:"QUALITY"`
	Registry  RegistryConfig  `yaml:"registry" env:"REGISTRY"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// StorageConfig configures the storage engine.
type StorageConfig struct {
	// Driver selects the relational backend: sqlite, postgres, mysql.
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN or, for sqlite, a file path ("file:beads.db" or ":memory:").
	DSN string `yaml:"dsn" env:"DSN"`
	// MaxOpenConns caps the pool's open connections.
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// MaxIdleConns caps the pool's idle connections.
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// ConnMaxLifetime bounds how long a pooled connection is reused.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// MaxTxRetries bounds transaction retry-on-conflict attempts.
	MaxTxRetries int `yaml:"max_tx_retries" env:"MAX_TX_RETRIES"`
	// TxRetryBaseDelay is the exponential backoff base for tx retries.
	TxRetryBaseDelay time.Duration `yaml:"tx_retry_base_delay" env:"TX_RETRY_BASE_DELAY"`
	// MigrationsTable names the schema_migrations-equivalent table.
	MigrationsTable string `yaml:"migrations_table" env:"MIGRATIONS_TABLE"`
}

// SchedulerConfig configures the agent work loop.
type SchedulerConfig struct {
	// HeartbeatInterval is how often an agent should emit a heartbeat.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	// StaleMultiplier is the multiple of HeartbeatInterval after which an agent
	// is considered stale.
	StaleMultiplier int `yaml:"stale_multiplier" env:"STALE_MULTIPLIER"`
	// ReaperInterval is how often the stale reaper sweeps.
	ReaperInterval time.Duration `yaml:"reaper_interval" env:"REAPER_INTERVAL"`
	// RetrySweepInterval is how often findRetryEligible is polled.
	RetrySweepInterval time.Duration `yaml:"retry_sweep_interval" env:"RETRY_SWEEP_INTERVAL"`
	// ClaimBackoffMin is the idle-loop sleep floor when no task is ready.
	ClaimBackoffMin time.Duration `yaml:"claim_backoff_min" env:"CLAIM_BACKOFF_MIN"`
	// ClaimBackoffMax caps the idle-loop sleep.
	ClaimBackoffMax time.Duration `yaml:"claim_backoff_max" env:"CLAIM_BACKOFF_MAX"`
	// ClaimRetries bounds the claim algorithm's steal-and-retry loop.
	ClaimRetries int `yaml:"claim_retries" env:"CLAIM_RETRIES"`
	// ClaimRateLimit throttles claim attempts per agent, 0 disables.
	ClaimRateLimit float64 `yaml:"claim_rate_limit" env:"CLAIM_RATE_LIMIT"`
}

// LeaseConfig configures the lease manager.
type LeaseConfig struct {
	// Backend selects sql (default, via Storage) or redis.
	Backend string `yaml:"backend" env:"BACKEND"`
	// DefaultDuration is used when a caller does not specify one.
	DefaultDuration time.Duration `yaml:"default_duration" env:"DEFAULT_DURATION"`
	// SweepInterval is how often findExpired-driven cleanup runs.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// BusConfig configures the message bus.
type BusConfig struct {
	// Backend selects sql (default, via Storage) or redis.
	Backend string `yaml:"backend" env:"BACKEND"`
	// PollInterval is the recommended agent receive() poll cadence.
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// ExpirySweepInterval is how often deleteExpired runs.
	ExpirySweepInterval time.Duration `yaml:"expiry_sweep_interval" env:"EXPIRY_SWEEP_INTERVAL"`
}

// MemoryConfig configures the memory store.
type MemoryConfig struct {
	// Dimension is the fixed embedding dimensionality for this store, 0
	// disables dimension validation until the first stored vector.
	Dimension int `yaml:"dimension" env:"DIMENSION"`
	// MaxEntries triggers adaptive compaction at 80% of this count.
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
	// SearchBatchSize is the memory-bounded scan batch for semanticSearch.
	SearchBatchSize int `yaml:"search_batch_size" env:"SEARCH_BATCH_SIZE"`
	// EarlyTerminationSimilarity lets a semantic search stop early once
	// half the rows are scanned and the K-th best similarity exceeds it.
	EarlyTerminationSimilarity float64 `yaml:"early_termination_similarity" env:"EARLY_TERMINATION_SIMILARITY"`
	// QueryCacheTTL caches semanticSearchByText embedding lookups.
	QueryCacheTTL time.Duration `yaml:"query_cache_ttl" env:"QUERY_CACHE_TTL"`
	// QueryCacheSize bounds the embedding-query LRU cache.
	QueryCacheSize int `yaml:"query_cache_size" env:"QUERY_CACHE_SIZE"`
}

// QualityConfig configures the quality engine.
type QualityConfig struct {
	// CoverageGateEnabled turns on the optional coverage blocking gate.
	CoverageGateEnabled bool `yaml:"coverage_gate_enabled" env:"COVERAGE_GATE_ENABLED"`
	// CoverageGateThreshold is the minimum passing coverage percentage.
	CoverageGateThreshold float64 `yaml:"coverage_gate_threshold" env:"COVERAGE_GATE_THRESHOLD"`
}

// RegistryConfig configures the agent registry.
type RegistryConfig struct {
	// StatsFlushInterval is how often aggregate stats are persisted, if
	// the implementation buffers them in memory between updates.
	StatsFlushInterval time.Duration `yaml:"stats_flush_interval" env:"STATS_FLUSH_INTERVAL"`
}

// RedisConfig configures the optional distributed backends for Lease and
// message bus, for deployments with more than one coordinator.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// LogConfig configures the zap logger shared by every component.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the optional OTel exporters.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads a Config using the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new config loader with the default env prefix BEADS.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "BEADS",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers an additional config validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the Config: defaults, then YAML file (if configured), then
// environment variable overrides, then validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads a Config from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads a Config from defaults + environment only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks invariants that DefaultConfig alone can't guarantee once
// a file or env override has been applied.
func (c *Config) Validate() error {
	var errs []string

	if c.Storage.Driver == "" {
		errs = append(errs, "storage.driver is required")
	}
	if c.Storage.MaxTxRetries < 0 {
		errs = append(errs, "storage.max_tx_retries must be >= 0")
	}
	if c.Scheduler.StaleMultiplier <= 0 {
		errs = append(errs, "scheduler.stale_multiplier must be positive")
	}
	if c.Memory.Dimension < 0 {
		errs = append(errs, "memory.dimension must be >= 0")
	}
	if c.Quality.CoverageGateEnabled && (c.Quality.CoverageGateThreshold < 0 || c.Quality.CoverageGateThreshold > 100) {
		errs = append(errs, "quality.coverage_gate_threshold must be within [0,100]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
