package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"promopush/internal/constants"
	pkgerrors "promopush/pkg/errors"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, pkgerrors.ErrConfiguration.WithCause(fmt.Errorf("failed to read config file %s: %w", configFile, err))
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, pkgerrors.ErrConfiguration.WithCause(fmt.Errorf("failed to unmarshal config: %w", err))
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, pkgerrors.ErrConfiguration.WithCause(err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")

	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.sslmode", "disable")
	viper.SetDefault("database.postgres.max_open_conns", 10)
	viper.SetDefault("database.redis.port", 6379)

	viper.SetDefault("broker.type", "kafka")
	viper.SetDefault("broker.kafka.input_topic", constants.DefaultInputTopic)
	viper.SetDefault("broker.kafka.output_topic", constants.DefaultOutputTopic)
	viper.SetDefault("broker.kafka.retry.max_attempts", 3)
	viper.SetDefault("broker.kafka.retry.initial_interval", "500ms")
	viper.SetDefault("broker.kafka.retry.max_interval", "5s")
	viper.SetDefault("broker.kafka.retry.multiplier", 2.0)

	viper.SetDefault("logging.level", "info")

	viper.SetDefault("pipeline.max_records", constants.DefaultMaxRecords)
	viper.SetDefault("pipeline.poll_wait", constants.DefaultPollWait)
	viper.SetDefault("pipeline.workers", constants.DefaultWorkers)

	viper.SetDefault("filtering.fallback.on_error", constants.FallbackDeny)

	viper.SetDefault("catalog.table", constants.DefaultCatalogTable)

	viper.SetDefault("deduplication.watermark_lag", constants.DefaultWatermarkLag)
	viper.SetDefault("deduplication.on_later_occurrence", constants.LaterOccurrenceSuppress)

	viper.SetDefault("dispatcher.concurrent_sinks", true)
	viper.SetDefault("dispatcher.timeout", constants.DispatchTimeout)
	viper.SetDefault("dispatcher.retry.max_attempts", 5)
	viper.SetDefault("dispatcher.retry.initial_interval", "1s")
	viper.SetDefault("dispatcher.retry.max_interval", "30s")
	viper.SetDefault("dispatcher.retry.multiplier", 2.0)

	viper.SetDefault("feedback.table", constants.DefaultFeedbackTable)

	viper.SetDefault("ledger.ttl", constants.DefaultLedgerTTL)

	viper.SetDefault("ops.rate_limit.rps", 10)
	viper.SetDefault("ops.rate_limit.burst", 20)
	viper.SetDefault("ops.rate_limit.cleanup_interval", "1m")
	viper.SetDefault("ops.rate_limit.max_age", "5m")

	viper.SetDefault("circuit_breaker.enabled", true)

	viper.SetDefault("tracing.service_name", constants.ServiceName)
	viper.SetDefault("tracing.sampler.type", "parentbased_always_on")
}

func bindEnvVariables() {
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.input_topic", "BROKER_KAFKA_INPUT_TOPIC")
	viper.BindEnv("broker.kafka.output_topic", "BROKER_KAFKA_OUTPUT_TOPIC")
	viper.BindEnv("broker.kafka.catalog_refresh_topic", "BROKER_KAFKA_CATALOG_REFRESH_TOPIC")
	viper.BindEnv("broker.kafka.instance_id", "BROKER_KAFKA_INSTANCE_ID")
	viper.BindEnv("broker.kafka.sasl.mechanism", "BROKER_KAFKA_SASL_MECHANISM")
	viper.BindEnv("broker.kafka.sasl.username", "BROKER_KAFKA_SASL_USERNAME")
	viper.BindEnv("broker.kafka.sasl.password", "BROKER_KAFKA_SASL_PASSWORD")
	viper.BindEnv("broker.kafka.tls.enabled", "BROKER_KAFKA_TLS_ENABLED")
	viper.BindEnv("broker.kafka.tls.ca_file", "BROKER_KAFKA_TLS_CA_FILE")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")
	viper.BindEnv("database.run_migrations", "DATABASE_RUN_MIGRATIONS")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("deduplication.watermark_lag", "DEDUPLICATION_WATERMARK_LAG")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("logging.level", "LOGGING_LEVEL")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	cfg.Broker.Kafka.SASL.Mechanism = strings.ToUpper(cfg.Broker.Kafka.SASL.Mechanism)
}
