package decoder

import (
	"fmt"

	pkgerrors "promopush/pkg/errors"
)

type Kind int

const (
	SchemaMismatch Kind = iota + 1
)

func (k Kind) String() string {
	switch k {
	case SchemaMismatch:
		return "schema_mismatch"
	default:
		return "unknown"
	}
}

// DecodeError reports a dropped record. Malformed input is never retried.
type DecodeError struct {
	Kind      Kind
	Topic     string
	Partition int
	Offset    int64
	cause     error
}

func newSchemaMismatch(topic string, partition int, offset int64, err error) *DecodeError {
	return &DecodeError{
		Kind:      SchemaMismatch,
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		cause:     pkgerrors.ErrSchemaMismatch.WithCause(err),
	}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s at %s[%d]@%d: %v", e.Kind, e.Topic, e.Partition, e.Offset, e.cause)
}

func (e *DecodeError) Unwrap() error {
	return e.cause
}
