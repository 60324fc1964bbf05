package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/unbundle/internal/bookmarks"
	"github.com/roach88/unbundle/internal/config"
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/metrics"
	"github.com/roach88/unbundle/internal/ratelimit"
	"github.com/roach88/unbundle/internal/scribe"
	"github.com/roach88/unbundle/internal/store"
)

// MutationStore records commit mutation history.
type MutationStore interface {
	AddMutationEntries(ctx context.Context, changesets []ir.NativeID, entries []ir.MutationEntry) error
}

// ReverseFillerQueue preserves raw bundles of scratch pushes for replay
// into another backend.
type ReverseFillerQueue interface {
	InsertBundle(ctx context.Context, repoName string, bundle ir.RawBundleID) (int64, error)
}

// RateLimiter admits pushes by commits per author.
type RateLimiter interface {
	Admit(ctx context.Context, commitsByAuthor map[string]int) error
}

// Engine applies resolved actions to one repository. It is safe for
// concurrent use; concurrent pushes to the same bookmark are ordered only
// by the bookmark compare-and-swap.
type Engine struct {
	repo        *bookmarks.Repo
	store       *store.Store
	cfg         *config.RepoConfig
	scribe      scribe.Client
	fillerQueue ReverseFillerQueue
	mutations   MutationStore
	limiter     RateLimiter
	metrics     *metrics.Metrics
	tunables    func() config.Tunables
	clock       Clock
	ids         RequestIDGenerator

	sideEffects sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithScribe sets the client commit records are offered to. Without one,
// commit logging is discarded.
func WithScribe(c scribe.Client) Option {
	return func(e *Engine) {
		e.scribe = c
	}
}

// WithReverseFillerQueue sets the bundle preservation queue. By default
// the repository store is used when the config enables the queue.
func WithReverseFillerQueue(q ReverseFillerQueue) Option {
	return func(e *Engine) {
		e.fillerQueue = q
	}
}

// WithMutationStore replaces the store-backed mutation store.
func WithMutationStore(m MutationStore) Option {
	return func(e *Engine) {
		e.mutations = m
	}
}

// WithRateLimiter replaces the limiter built from the config.
func WithRateLimiter(l RateLimiter) Option {
	return func(e *Engine) {
		e.limiter = l
	}
}

// WithMetrics sets the collectors requests are counted in.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTunables sets the accessor runtime tunables are read through on
// every request, so they can be reloaded without restarting.
func WithTunables(get func() config.Tunables) Option {
	return func(e *Engine) {
		e.tunables = get
	}
}

// WithClock sets the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRequestIDs sets the request id generator.
func WithRequestIDs(g RequestIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an engine for repo, configured by cfg.
func New(repo *bookmarks.Repo, cfg *config.RepoConfig, opts ...Option) (*Engine, error) {
	limiter, err := ratelimit.New(cfg.RateLimits)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		repo:      repo,
		store:     repo.Store(),
		cfg:       cfg,
		mutations: repo.Store(),
		limiter:   limiter,
		tunables:  config.DefaultTunables,
		clock:     SystemClock{},
		ids:       UUIDv7Generator{},
	}
	if cfg.ReverseFillerQueue {
		e.fillerQueue = repo.Store()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// request carries per-request metadata through a strategy.
type request struct {
	id       string
	client   ir.ClientInfo
	received time.Time
}

// ResolveAndApply runs one resolved action. The returned error is always
// a *ResolverError.
func (e *Engine) ResolveAndApply(ctx context.Context, action PostResolveAction) (UnbundleResponse, error) {
	req := request{
		id:       e.ids.Generate(),
		client:   ClientInfoFrom(ctx),
		received: e.clock.Now(),
	}
	strategy := action.strategy()

	if err := e.enforceCommitRateLimits(ctx, action); err != nil {
		slog.Info("unbundle rejected by rate limiter",
			"repo", e.repo.Name(),
			"request_id", req.id,
			"error", err,
		)
		return nil, err
	}

	var (
		resp UnbundleResponse
		err  error
	)
	switch a := action.(type) {
	case PostResolvePush:
		resp, err = e.runPush(ctx, req, a)
		err = withContext(err, "While doing a push")
	case PostResolveInfinitePush:
		resp, err = e.runInfinitepush(ctx, req, a)
		err = withContext(err, "While doing an infinitepush")
	case PostResolvePushRebase:
		resp, err = e.runPushrebase(ctx, req, a)
		if err != nil {
			err = asResolverError(err)
		}
	case PostResolveBookmarkOnlyPushRebase:
		resp, err = e.runBookmarkOnlyPushrebase(ctx, req, a)
		err = withContext(err, "While doing a bookmark-only pushrebase")
	default:
		return nil, errorf("unknown action %T", action)
	}
	e.metrics.Observe(e.repo.Name(), strategy, e.clock.Now().Sub(req.received).Seconds())

	if err != nil {
		slog.Info("unbundle failed",
			"repo", e.repo.Name(),
			"request_id", req.id,
			"type", strategy,
			"code", CodeOf(err),
			"error", err,
		)
		return nil, err
	}
	e.metrics.Processed(e.repo.Name(), resp.Strategy())
	return resp, nil
}

// Wait blocks until all side effects started so far have finished.
func (e *Engine) Wait() {
	e.sideEffects.Wait()
}

func (e *Engine) enforceCommitRateLimits(ctx context.Context, action PostResolveAction) error {
	if e.limiter == nil {
		return nil
	}
	counts := make(map[string]int)
	for _, cs := range action.uploaded() {
		counts[cs.Author]++
	}
	if err := e.limiter.Admit(ctx, counts); err != nil {
		if ratelimit.IsRateLimited(err) {
			return &ResolverError{Code: ErrCodeRateLimited, Err: err}
		}
		return withContext(err, "Failed to check commit rate limits")
	}
	return nil
}

// spawn runs a best-effort side effect detached from the request's
// cancellation, bounded by the side effect timeout tunable.
func (e *Engine) spawn(ctx context.Context, req request, name string, fn func(ctx context.Context) error) {
	timeout := e.tunables().SideEffectTimeout
	ctx = context.WithoutCancel(ctx)

	e.sideEffects.Add(1)
	go func() {
		defer e.sideEffects.Done()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := fn(ctx); err != nil {
			slog.Warn("side effect failed",
				"repo", e.repo.Name(),
				"request_id", req.id,
				"side_effect", name,
				"error", err,
			)
			e.metrics.SideEffectFailed(e.repo.Name(), name)
		}
	}()
}

// saveChangesets stores uploaded changesets that no bookmark transaction
// stored. They stay draft.
func (e *Engine) saveChangesets(ctx context.Context, changesets []*ir.Changeset) error {
	if len(changesets) == 0 {
		return nil
	}
	if err := e.store.SaveChangesets(ctx, changesets); err != nil {
		return withContext(err, "Failed to store uploaded changesets")
	}
	return nil
}

func (e *Engine) storeMutations(ctx context.Context, ids []ir.NativeID, entries []ir.MutationEntry) error {
	if !e.tunables().MutationAcceptForInfinitepush || e.mutations == nil {
		return nil
	}
	if err := e.mutations.AddMutationEntries(ctx, ids, entries); err != nil {
		return withContext(err, "Failed to store mutation data")
	}
	return nil
}

func changesetIDs(changesets []*ir.Changeset) ([]ir.ChangesetID, error) {
	ids := make([]ir.ChangesetID, len(changesets))
	for i, cs := range changesets {
		id, err := cs.ID()
		if err != nil {
			return nil, errorf("invalid uploaded changeset: %w", err)
		}
		ids[i] = id
	}
	return ids, nil
}
