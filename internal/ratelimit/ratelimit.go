// Package ratelimit admits or rejects pushes by the number of commits
// each author has pushed recently.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/roach88/unbundle/internal/config"
)

// DefaultMaxAuthors bounds the number of per-author buckets kept.
const DefaultMaxAuthors = 10000

// RateLimitedError is returned when an author exceeds the commit rate.
type RateLimitedError struct {
	Author string
	Limit  int
	Window time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("commit rate limit exceeded for %s: at most %d commits per %s", e.Author, e.Limit, e.Window)
}

// IsRateLimited reports whether err is a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// Limiter holds one token bucket per author. Each bucket allows Limit
// commits at once and refills at Limit per Window. A nil *Limiter admits
// everything.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets *lru.Cache[string, *rate.Limiter]
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New builds a limiter from config. It returns nil when no commit rate
// limit is configured.
func New(cfg config.RateLimits, opts ...Option) (*Limiter, error) {
	if cfg.CommitsPerAuthor == nil {
		return nil, nil
	}
	window, err := cfg.CommitsPerAuthor.WindowDuration()
	if err != nil {
		return nil, err
	}
	if cfg.CommitsPerAuthor.Limit <= 0 || window <= 0 {
		return nil, fmt.Errorf("rate limit: limit and window must be positive")
	}
	buckets, err := lru.New[string, *rate.Limiter](DefaultMaxAuthors)
	if err != nil {
		return nil, err
	}
	l := &Limiter{
		limit:   cfg.CommitsPerAuthor.Limit,
		window:  window,
		now:     time.Now,
		buckets: buckets,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Admit charges commits per author against their buckets. Either every
// author is admitted and charged, or nothing is charged and a
// RateLimitedError names the first author (in name order) over the limit.
func (l *Limiter) Admit(ctx context.Context, commitsByAuthor map[string]int) error {
	if l == nil || len(commitsByAuthor) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var reserved []*rate.Reservation
	for _, author := range slices.Sorted(maps.Keys(commitsByAuthor)) {
		n := commitsByAuthor[author]
		if n <= 0 {
			continue
		}
		r := l.bucket(author).ReserveN(now, n)
		if !r.OK() || r.DelayFrom(now) > 0 {
			r.CancelAt(now)
			for _, prev := range reserved {
				prev.CancelAt(now)
			}
			return &RateLimitedError{Author: author, Limit: l.limit, Window: l.window}
		}
		reserved = append(reserved, r)
	}
	return nil
}

func (l *Limiter) bucket(author string) *rate.Limiter {
	if b, ok := l.buckets.Get(author); ok {
		return b
	}
	every := rate.Every(l.window / time.Duration(l.limit))
	b := rate.NewLimiter(every, l.limit)
	l.buckets.Add(author, b)
	return b
}
