package health

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func ok(name string) Checker {
	return NewFuncChecker(name, func(context.Context) error { return nil })
}

func failing(name string) Checker {
	return NewFuncChecker(name, func(context.Context) error { return errors.New("down") })
}

func TestCheckerRegistry(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *CheckerRegistry)
		expected Status
	}{
		{
			name:     "no checkers",
			setup:    func(*CheckerRegistry) {},
			expected: StatusHealthy,
		},
		{
			name: "all healthy",
			setup: func(r *CheckerRegistry) {
				r.Register(ok("postgresql"))
				r.RegisterOptional(ok("redis"))
			},
			expected: StatusHealthy,
		},
		{
			name: "optional failure degrades",
			setup: func(r *CheckerRegistry) {
				r.Register(ok("postgresql"))
				r.RegisterOptional(failing("redis"))
			},
			expected: StatusDegraded,
		},
		{
			name: "required failure is unhealthy",
			setup: func(r *CheckerRegistry) {
				r.Register(failing("kafka"))
				r.RegisterOptional(failing("redis"))
			},
			expected: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			tt.setup(r)
			h := r.Check(context.Background())
			assert.Equal(t, tt.expected, h.Status)
		})
	}
}

func TestCheckResultCarriesMessage(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(failing("kafka"))

	h := r.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, h.Checks["kafka"].Status)
	assert.Equal(t, "down", h.Checks["kafka"].Message)
}

func TestKafkaCheckerWithoutBrokers(t *testing.T) {
	c := NewKafkaChecker(&kafka.Dialer{}, nil)
	assert.EqualError(t, c.Check(context.Background()), "no kafka brokers configured")
	assert.Equal(t, "kafka", c.Name())
}

func TestChecksRunWithDeadline(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(NewFuncChecker("catalog", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}))

	h := r.Check(context.Background())
	assert.Equal(t, StatusHealthy, h.Status)
	assert.GreaterOrEqual(t, h.Checks["catalog"].LatencyMS, int64(0))
}
