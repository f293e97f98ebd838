package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store keeps one token bucket per client key.
type Store struct {
	rps    rate.Limit
	burst  int
	maxAge time.Duration

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func NewStore(config RateLimitConfig) *Store {
	config = config.withDefaults()
	return &Store{
		rps:     rate.Limit(config.RPS),
		burst:   config.Burst,
		maxAge:  config.MaxAge,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow takes one token for key and reports the tokens left afterwards.
func (s *Store) Allow(key string, now time.Time) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.clients[key] = c
	}
	c.lastSeen = now

	allowed := c.limiter.AllowN(now, 1)
	remaining := int(c.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

// Sweep drops clients idle for longer than the configured max age.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, c := range s.clients {
		if now.Sub(c.lastSeen) > s.maxAge {
			delete(s.clients, key)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
