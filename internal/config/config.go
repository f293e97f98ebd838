package config

import (
	"fmt"
	"net/url"
	"time"

	"promopush/pkg/circuitbreaker"
	"promopush/pkg/retry"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	Filtering      FilteringConfig      `mapstructure:"filtering"`
	Catalog        CatalogConfig        `mapstructure:"catalog"`
	Deduplication  DeduplicationConfig  `mapstructure:"deduplication"`
	Dispatcher     DispatcherConfig     `mapstructure:"dispatcher"`
	Feedback       FeedbackConfig       `mapstructure:"feedback"`
	Ledger         LedgerConfig         `mapstructure:"ledger"`
	Ops            OpsConfig            `mapstructure:"ops"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// DSN renders a lib/pq connection URL.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u.RawQuery = url.Values{"sslmode": []string{sslMode}}.Encode()
	return u.String()
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers             []string `mapstructure:"brokers"`
	GroupID             string   `mapstructure:"group_id"`
	InputTopic          string   `mapstructure:"input_topic"`
	OutputTopic         string   `mapstructure:"output_topic"`
	CatalogRefreshTopic string   `mapstructure:"catalog_refresh_topic"`
	// InstanceID names this process's control-topic consumer group. Empty means hostname.
	InstanceID string      `mapstructure:"instance_id"`
	SASL       SASLConfig  `mapstructure:"sasl"`
	TLS        TLSConfig   `mapstructure:"tls"`
	Retry      RetryConfig `mapstructure:"retry"`
}

type SASLConfig struct {
	Mechanism string `mapstructure:"mechanism"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     c.MaxAttempts,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		Multiplier:      c.Multiplier,
		MaxElapsedTime:  c.MaxElapsedTime,
	}
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type PipelineConfig struct {
	MaxRecords int           `mapstructure:"max_records"`
	PollWait   time.Duration `mapstructure:"poll_wait"`
	Workers    int           `mapstructure:"workers"`
}

type FilteringConfig struct {
	Rules    []FilterRuleConfig `mapstructure:"rules"`
	Fallback FallbackConfig     `mapstructure:"fallback"`
}

type FilterRuleConfig struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"`
}

type FallbackConfig struct {
	OnError string `mapstructure:"on_error"` // "allow" or "deny"
}

type CatalogConfig struct {
	Table           string        `mapstructure:"table"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type DeduplicationConfig struct {
	WatermarkLag      time.Duration `mapstructure:"watermark_lag"`
	OnLaterOccurrence string        `mapstructure:"on_later_occurrence"`
	PerSubscriber     bool          `mapstructure:"per_subscriber"`
}

type DispatcherConfig struct {
	ConcurrentSinks bool          `mapstructure:"concurrent_sinks"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Retry           RetryConfig   `mapstructure:"retry"`
}

type FeedbackConfig struct {
	Table string `mapstructure:"table"`
}

type LedgerConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type OpsConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

// Breaker builds the gobreaker settings for a named sink.
func (c CircuitBreakerConfig) Breaker(name string) circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig(name)
	if c.MaxRequests > 0 {
		cfg.MaxRequests = c.MaxRequests
	}
	if c.Interval > 0 {
		cfg.Interval = c.Interval
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	if c.FailureRatio > 0 {
		cfg.FailureRatio = c.FailureRatio
	}
	if c.MinRequests > 0 {
		cfg.MinRequests = c.MinRequests
	}
	return cfg
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
