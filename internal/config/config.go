// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/your-org/strategy-runner/internal/strategy"
)

// Config defines the structure for all application configuration.
type Config struct {
	LogLevel     string                `yaml:"log_level"`
	SnapshotDir  string                `yaml:"snapshot_dir"`
	Database     DatabaseConfig        `yaml:"database"`
	DBWriter     DBWriterConfig        `yaml:"db_writer"`
	Orchestrator OrchestratorConfig    `yaml:"orchestrator"`
	Simulation   SimulationConfig      `yaml:"simulation"`
	Feed         FeedConfig            `yaml:"feed"`
	HTTP         HTTPConfig            `yaml:"http"`
	Strategies   []strategy.Definition `yaml:"strategies"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// Enabled reports whether enough settings are present to open a pool.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != "" && d.Name != ""
}

// URL builds a postgres connection string.
func (d DatabaseConfig) URL() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslMode)
}

// DBWriterConfig controls the batching of the asynchronous writer.
type DBWriterConfig struct {
	BatchSize            int `yaml:"batch_size"`
	WriteIntervalSeconds int `yaml:"write_interval_seconds"`
}

// OrchestratorConfig holds the limits and timings of the strategy orchestrator.
type OrchestratorConfig struct {
	MaxInstances               int      `yaml:"max_instances"`
	MaxInstancesPerOwner       int      `yaml:"max_instances_per_owner"`
	MaxDailyExecutionsPerOwner int      `yaml:"max_daily_executions_per_owner"`
	DefaultMaxRetries          int      `yaml:"default_max_retries"`
	DefaultRestartDelay        Duration `yaml:"default_restart_delay"`
	WaitingDelay               Duration `yaml:"waiting_delay"`
	RateLimitPerMinute         int      `yaml:"rate_limit_per_minute"`
	CircuitBreakerThreshold    int      `yaml:"circuit_breaker_threshold"`
	DeadLetterCapacity         int      `yaml:"dead_letter_capacity"`
	MaxContextVars             int      `yaml:"max_context_vars"`
}

// SimulationConfig holds the defaults applied to new paper sessions.
type SimulationConfig struct {
	// BaseAddress is the token address of the base currency.
	BaseAddress         string   `yaml:"base_address"`
	FeePct              float64  `yaml:"fee_pct"`
	SlippagePct         float64  `yaml:"slippage_pct"`
	NetworkFee          float64  `yaml:"network_fee"`
	InitialBaseBalance  float64  `yaml:"initial_base_balance"`
	InitialQuoteBalance float64  `yaml:"initial_quote_balance"`
	PriceRetryAttempts  int      `yaml:"price_retry_attempts"`
	PriceRetryBaseDelay Duration `yaml:"price_retry_base_delay"`
	// MarkInterval is how often active sessions are marked to market and
	// their equity recorded. Zero disables it.
	MarkInterval Duration `yaml:"mark_interval"`
}

// FeedConfig configures the optional websocket trade source.
type FeedConfig struct {
	Enabled FlexBool `yaml:"enabled"`
	URL     string   `yaml:"url"`
	// QuoteRate is the base/quote rate reported by the price book.
	QuoteRate float64 `yaml:"quote_rate"`
	// MaxPriceAge rejects prices older than this. Zero disables the check.
	MaxPriceAge Duration `yaml:"max_price_age"`
}

// HTTPConfig configures the health and status server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config populated with production defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Database: DatabaseConfig{Port: 5432, SSLMode: "disable"},
		DBWriter: DBWriterConfig{BatchSize: 100, WriteIntervalSeconds: 1},
		Orchestrator: OrchestratorConfig{
			MaxInstances:            100,
			DefaultMaxRetries:       3,
			DefaultRestartDelay:     Duration(30 * time.Second),
			WaitingDelay:            Duration(5 * time.Second),
			RateLimitPerMinute:      100,
			CircuitBreakerThreshold: 10,
			DeadLetterCapacity:      1000,
			MaxContextVars:          64,
		},
		Simulation: SimulationConfig{
			BaseAddress:         "So11111111111111111111111111111111111111112",
			FeePct:              0.0025,
			SlippagePct:         0.005,
			InitialBaseBalance:  10,
			PriceRetryAttempts:  3,
			PriceRetryBaseDelay: Duration(500 * time.Millisecond),
			MarkInterval:        Duration(time.Minute),
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// LoadConfig loads configuration from the specified YAML file path
// and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides loads sensitive data and overrides from environment variables.
func applyEnvOverrides(cfg *Config) {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}
	if feedURL := os.Getenv("FEED_URL"); feedURL != "" {
		cfg.Feed.URL = feedURL
		cfg.Feed.Enabled = true
	}
}

// Validate checks the critical config values.
func (c *Config) Validate() error {
	var errs []error
	o := c.Orchestrator
	if o.MaxInstances <= 0 {
		errs = append(errs, errors.New("orchestrator.max_instances must be positive"))
	}
	if o.DefaultMaxRetries < 0 {
		errs = append(errs, errors.New("orchestrator.default_max_retries must not be negative"))
	}
	if o.DefaultRestartDelay <= 0 {
		errs = append(errs, errors.New("orchestrator.default_restart_delay must be positive"))
	}
	if o.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("orchestrator.rate_limit_per_minute must be positive"))
	}
	if o.CircuitBreakerThreshold <= 0 {
		errs = append(errs, errors.New("orchestrator.circuit_breaker_threshold must be positive"))
	}
	if o.DeadLetterCapacity <= 0 {
		errs = append(errs, errors.New("orchestrator.dead_letter_capacity must be positive"))
	}
	s := c.Simulation
	if s.FeePct < 0 || s.FeePct >= 1 {
		errs = append(errs, fmt.Errorf("simulation.fee_pct out of range: %v", s.FeePct))
	}
	if s.SlippagePct < 0 || s.SlippagePct >= 1 {
		errs = append(errs, fmt.Errorf("simulation.slippage_pct out of range: %v", s.SlippagePct))
	}
	if s.NetworkFee < 0 {
		errs = append(errs, errors.New("simulation.network_fee must not be negative"))
	}
	if s.BaseAddress == "" {
		errs = append(errs, errors.New("simulation.base_address is required"))
	}
	if s.PriceRetryAttempts <= 0 {
		errs = append(errs, errors.New("simulation.price_retry_attempts must be positive"))
	}
	for i, d := range c.Strategies {
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("strategies[%d].id is required", i))
		}
	}
	if bool(c.Feed.Enabled) && c.Feed.URL == "" {
		errs = append(errs, errors.New("feed.url is required when the feed is enabled"))
	}
	return errors.Join(errs...)
}
