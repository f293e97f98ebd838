package constants

import "time"

const (
	ServiceName = "promo-trigger-service"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaDialTimeout  = 10 * time.Second
)

const (
	DefaultInputTopic  = "promo_campaigns_in"
	DefaultOutputTopic = "promo_campaigns_out"
)

const (
	DefaultCatalogTable  = "subscribers_restaurants"
	DefaultFeedbackTable = "subscribers_feedback"
)

const (
	DefaultWatermarkLag = 10 * time.Minute
	DefaultMaxRecords   = 500
	DefaultPollWait     = 2 * time.Second
	DefaultWorkers      = 8
)

const (
	ShutdownTimeout = 5 * time.Second
	DispatchTimeout = 30 * time.Second
	HealthTimeout   = 5 * time.Second
)

const (
	LedgerKeyPrefix  = "promopush:batch:"
	DefaultLedgerTTL = 24 * time.Hour
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	LaterOccurrenceSuppress = "suppress"
	LaterOccurrenceReemit   = "reemit"
)

const (
	SASLMechanismPlain    = "PLAIN"
	SASLMechanismSCRAM256 = "SCRAM-SHA-256"
	SASLMechanismSCRAM512 = "SCRAM-SHA-512"
)

const (
	EventTypeCatalogRefresh = "catalog_refresh"
)
