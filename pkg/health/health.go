package health

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"promopush/internal/constants"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

type entry struct {
	checker  Checker
	optional bool
}

// CheckerRegistry probes every registered dependency in parallel. A failing required
// dependency makes the service unhealthy; a failing optional one only degrades it.
type CheckerRegistry struct {
	entries []entry
	now     func() time.Time
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{now: time.Now}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.entries = append(r.entries, entry{checker: checker})
}

func (r *CheckerRegistry) RegisterOptional(checker Checker) {
	r.entries = append(r.entries, entry{checker: checker, optional: true})
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(r.entries))
		overall = StatusHealthy
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range r.entries {
		g.Go(func() error {
			started := r.now()
			err := e.checker.Check(gctx)
			res := CheckResult{
				Status:    StatusHealthy,
				LatencyMS: r.now().Sub(started).Milliseconds(),
				Timestamp: started,
			}
			if err != nil {
				res.Message = err.Error()
				res.Status = StatusUnhealthy
				if e.optional {
					res.Status = StatusDegraded
				}
			}

			mu.Lock()
			results[e.checker.Name()] = res
			overall = worse(overall, res.Status)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return Health{Status: overall, Timestamp: r.now(), Checks: results}
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// FuncChecker adapts a plain probe function. Probes built through it are bounded by
// constants.HealthTimeout.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) error
}

func NewFuncChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthTimeout)
	defer cancel()
	return c.fn(ctx)
}

func NewPostgreSQLChecker(db *sql.DB) *FuncChecker {
	return NewFuncChecker("postgresql", func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgresql ping failed: %w", err)
		}
		return nil
	})
}

func NewRedisChecker(client *redis.Client) *FuncChecker {
	return NewFuncChecker("redis", func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	})
}

// NewKafkaChecker succeeds as soon as one broker answers a metadata request.
func NewKafkaChecker(dialer *kafka.Dialer, brokers []string) *FuncChecker {
	return NewFuncChecker("kafka", func(ctx context.Context) error {
		if len(brokers) == 0 {
			return fmt.Errorf("no kafka brokers configured")
		}
		var lastErr error
		for _, addr := range brokers {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				lastErr = err
				continue
			}
			_, err = conn.Brokers()
			_ = conn.Close()
			if err == nil {
				return nil
			}
			lastErr = err
		}
		return fmt.Errorf("kafka dial failed: %w", lastErr)
	})
}
