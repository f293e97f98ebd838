package broker

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"promopush/internal/config"
	"promopush/internal/constants"
)

func saslMechanism(cfg config.SASLConfig) (sasl.Mechanism, error) {
	switch strings.ToUpper(cfg.Mechanism) {
	case "":
		return nil, nil
	case constants.SASLMechanismPlain:
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case constants.SASLMechanismSCRAM256:
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case constants.SASLMechanismSCRAM512:
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.Mechanism)
	}
}

func tlsConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // operator opt-in
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", cfg.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tc.RootCAs = pool
	}

	return tc, nil
}

func newDialer(cfg config.KafkaConfig) (*kafka.Dialer, error) {
	mechanism, err := saslMechanism(cfg.SASL)
	if err != nil {
		return nil, err
	}
	tc, err := tlsConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{
		Timeout:       constants.KafkaDialTimeout,
		DualStack:     true,
		TLS:           tc,
		SASLMechanism: mechanism,
	}, nil
}

func newTransport(cfg config.KafkaConfig) (*kafka.Transport, error) {
	mechanism, err := saslMechanism(cfg.SASL)
	if err != nil {
		return nil, err
	}
	tc, err := tlsConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	return &kafka.Transport{
		DialTimeout: constants.KafkaDialTimeout,
		TLS:         tc,
		SASL:        mechanism,
	}, nil
}

// NewDialer exposes the configured dialer for broker health probes.
func NewDialer(cfg config.KafkaConfig) (*kafka.Dialer, error) {
	return newDialer(cfg)
}
