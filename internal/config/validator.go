package config

import (
	"errors"
	"fmt"
	"strings"

	"promopush/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks every section and joins all failures.
func ValidateStatic(cfg *Config) error {
	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateBroker(c.Broker) },
		func(c *Config) error { return validateDatabase(c.Database) },
		func(c *Config) error { return validatePipeline(c.Pipeline) },
		func(c *Config) error { return validateFiltering(c.Filtering) },
		func(c *Config) error { return validateCatalog(c.Catalog) },
		func(c *Config) error { return validateDeduplication(c.Deduplication) },
		func(c *Config) error { return validateDispatcher(c.Dispatcher) },
		func(c *Config) error { return validateFeedback(c.Feedback) },
	}

	var errs []error
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{Field: "server.read_timeout", Message: "read timeout must be positive"}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{Field: "server.write_timeout", Message: "write timeout must be positive"}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "":
		return &ValidationError{Field: "broker.type", Message: "broker type is required"}
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{Field: "broker.kafka.brokers", Message: "at least one Kafka broker is required"}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{Field: "broker.kafka.group_id", Message: "Kafka consumer group ID is required"}
	}

	if cfg.InputTopic == "" {
		return &ValidationError{Field: "broker.kafka.input_topic", Message: "input topic is required"}
	}

	if cfg.OutputTopic == "" {
		return &ValidationError{Field: "broker.kafka.output_topic", Message: "output topic is required"}
	}

	if cfg.InputTopic == cfg.OutputTopic {
		return &ValidationError{Field: "broker.kafka.output_topic", Message: "output topic must differ from input topic"}
	}

	if err := validateSASL(cfg.SASL); err != nil {
		return err
	}

	return validateRetry("broker.kafka.retry", cfg.Retry)
}

func validateSASL(cfg SASLConfig) error {
	switch cfg.Mechanism {
	case "":
		return nil
	case constants.SASLMechanismPlain, constants.SASLMechanismSCRAM256, constants.SASLMechanismSCRAM512:
	default:
		return &ValidationError{
			Field: "broker.kafka.sasl.mechanism",
			Message: fmt.Sprintf("invalid SASL mechanism: %s (valid: %s, %s, %s)", cfg.Mechanism,
				constants.SASLMechanismPlain, constants.SASLMechanismSCRAM256, constants.SASLMechanismSCRAM512),
		}
	}

	if cfg.Username == "" || cfg.Password == "" {
		return &ValidationError{Field: "broker.kafka.sasl", Message: "username and password are required when SASL is enabled"}
	}

	return nil
}

func validateRetry(field string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{Field: field + ".max_attempts", Message: "max_attempts must be non-negative"}
	}

	if cfg.InitialInterval < 0 {
		return &ValidationError{Field: field + ".initial_interval", Message: "initial_interval must be non-negative"}
	}

	if cfg.MaxInterval < 0 {
		return &ValidationError{Field: field + ".max_interval", Message: "max_interval must be non-negative"}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   field + ".max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier <= 0 {
		return &ValidationError{Field: field + ".multiplier", Message: "multiplier must be positive"}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if err := validatePostgres(cfg.Postgres); err != nil {
		return err
	}

	if cfg.Redis.Host != "" {
		return validateRedis(cfg.Redis)
	}

	return nil
}

// Postgres is mandatory: it holds both the catalog and the feedback sink.
func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{Field: "database.postgres.host", Message: "PostgreSQL host is required"}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{Field: "database.postgres.user", Message: "PostgreSQL user is required"}
	}

	if cfg.DBName == "" {
		return &ValidationError{Field: "database.postgres.dbname", Message: "PostgreSQL database name is required"}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validatePipeline(cfg PipelineConfig) error {
	if cfg.MaxRecords < 1 {
		return &ValidationError{Field: "pipeline.max_records", Message: "max_records must be positive"}
	}

	if cfg.PollWait <= 0 {
		return &ValidationError{Field: "pipeline.poll_wait", Message: "poll_wait must be positive"}
	}

	if cfg.Workers < 1 {
		return &ValidationError{Field: "pipeline.workers", Message: "workers must be positive"}
	}

	return nil
}

func validateFiltering(cfg FilteringConfig) error {
	switch strings.ToLower(cfg.Fallback.OnError) {
	case constants.FallbackAllow, constants.FallbackDeny:
	default:
		return &ValidationError{
			Field:   "filtering.fallback.on_error",
			Message: fmt.Sprintf("invalid on_error value: %s (valid: allow, deny)", cfg.Fallback.OnError),
		}
	}

	seen := make(map[string]bool, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		if rule.Name == "" || rule.Expression == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("filtering.rules[%d]", i),
				Message: "rule name and expression are required",
			}
		}
		if seen[rule.Name] {
			return &ValidationError{
				Field:   fmt.Sprintf("filtering.rules[%d].name", i),
				Message: fmt.Sprintf("duplicate rule name: %s", rule.Name),
			}
		}
		seen[rule.Name] = true
	}

	return nil
}

func validateCatalog(cfg CatalogConfig) error {
	if !isIdentifier(cfg.Table) {
		return &ValidationError{Field: "catalog.table", Message: fmt.Sprintf("invalid table name: %q", cfg.Table)}
	}

	if cfg.RefreshInterval < 0 {
		return &ValidationError{Field: "catalog.refresh_interval", Message: "refresh_interval must be non-negative"}
	}

	return nil
}

func validateDeduplication(cfg DeduplicationConfig) error {
	if cfg.WatermarkLag <= 0 {
		return &ValidationError{Field: "deduplication.watermark_lag", Message: "watermark_lag must be positive"}
	}

	switch strings.ToLower(cfg.OnLaterOccurrence) {
	case constants.LaterOccurrenceSuppress, constants.LaterOccurrenceReemit:
	default:
		return &ValidationError{
			Field:   "deduplication.on_later_occurrence",
			Message: fmt.Sprintf("invalid on_later_occurrence value: %s (valid: suppress, reemit)", cfg.OnLaterOccurrence),
		}
	}

	return nil
}

func validateDispatcher(cfg DispatcherConfig) error {
	if cfg.Timeout <= 0 {
		return &ValidationError{Field: "dispatcher.timeout", Message: "timeout must be positive"}
	}

	return validateRetry("dispatcher.retry", cfg.Retry)
}

func validateFeedback(cfg FeedbackConfig) error {
	if !isIdentifier(cfg.Table) {
		return &ValidationError{Field: "feedback.table", Message: fmt.Sprintf("invalid table name: %q", cfg.Table)}
	}

	return nil
}

// isIdentifier accepts plain or schema-qualified SQL identifiers.
func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9' && i > 0:
			default:
				return false
			}
		}
	}
	return true
}
