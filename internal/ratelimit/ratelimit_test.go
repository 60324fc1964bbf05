package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/unbundle/internal/config"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(t *testing.T, limit int, window string) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, err := New(config.RateLimits{CommitsPerAuthor: &config.RateLimit{Limit: limit, Window: window}}, WithClock(clock.now))
	require.NoError(t, err)
	require.NotNil(t, l)
	return l, clock
}

func TestNew_Unconfigured(t *testing.T) {
	l, err := New(config.RateLimits{})
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.NoError(t, l.Admit(context.Background(), map[string]int{"alice": 1000}))
}

func TestNew_InvalidWindow(t *testing.T) {
	_, err := New(config.RateLimits{CommitsPerAuthor: &config.RateLimit{Limit: 1, Window: "soon"}})
	assert.Error(t, err)
}

func TestAdmit(t *testing.T) {
	l, clock := newLimiter(t, 10, "10m")
	ctx := context.Background()

	require.NoError(t, l.Admit(ctx, map[string]int{"alice": 6}))
	require.NoError(t, l.Admit(ctx, map[string]int{"alice": 4}))

	err := l.Admit(ctx, map[string]int{"alice": 1})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "alice", rl.Author)
	assert.Equal(t, 10*time.Minute, rl.Window)

	// one commit per minute refills
	clock.advance(time.Minute)
	assert.NoError(t, l.Admit(ctx, map[string]int{"alice": 1}))

	assert.NoError(t, l.Admit(ctx, map[string]int{"bob": 10}), "authors have separate buckets")
}

func TestAdmit_OverBurst(t *testing.T) {
	l, _ := newLimiter(t, 5, "1h")
	assert.True(t, IsRateLimited(l.Admit(context.Background(), map[string]int{"alice": 6})))
}

func TestAdmit_AllOrNothing(t *testing.T) {
	l, _ := newLimiter(t, 5, "1h")
	ctx := context.Background()
	require.NoError(t, l.Admit(ctx, map[string]int{"bob": 5}))

	err := l.Admit(ctx, map[string]int{"alice": 3, "bob": 1})
	require.Error(t, err)

	assert.NoError(t, l.Admit(ctx, map[string]int{"alice": 5}), "rejected push must not charge alice")
}

func TestAdmit_CanceledContext(t *testing.T) {
	l, _ := newLimiter(t, 5, "1h")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Admit(ctx, map[string]int{"alice": 1}), context.Canceled)
}
