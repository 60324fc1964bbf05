// Package bookmarks implements bookmark movements: create, update, delete
// and pushrebase onto a bookmark.
//
// Each movement is an explicit configuration struct with a single Run
// method. Run checks, in order, the bookmark's kind against the operation's
// visibility requirement, write permissions, the fast-forward policy and the
// repository's hooks. Only then does it write, as one compare-and-swap
// transaction that also stores the pushed changesets and replay data. A
// failed check leaves storage untouched; a lost race is reported as
// ErrCodeRaceLost and never retried.
package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/unbundle/internal/config"
	"github.com/roach88/unbundle/internal/hooks"
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/pushrebase"
	"github.com/roach88/unbundle/internal/reachability"
	"github.com/roach88/unbundle/internal/store"
)

// Repo bundles the collaborators a bookmark movement needs.
type Repo struct {
	name         string
	store        *store.Store
	hooks        *hooks.Manager
	ancestry     *reachability.Oracle
	rebaser      pushrebase.Rebaser
	attrs        *config.BookmarkAttrs
	infinitepush config.InfinitepushParams
	scratch      *regexp.Regexp
}

// RepoOption configures a Repo.
type RepoOption func(*Repo)

// WithRebaser replaces the store-backed rebaser.
func WithRebaser(r pushrebase.Rebaser) RepoOption {
	return func(repo *Repo) {
		repo.rebaser = r
	}
}

// WithHooks replaces the hook manager built from config.
func WithHooks(m *hooks.Manager) RepoOption {
	return func(repo *Repo) {
		repo.hooks = m
	}
}

// NewRepo wires a repository from its config and store.
func NewRepo(cfg *config.RepoConfig, s *store.Store, opts ...RepoOption) (*Repo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("repo %s: %w", cfg.Name, err)
	}
	attrs, err := config.NewBookmarkAttrs(cfg.Bookmarks)
	if err != nil {
		return nil, fmt.Errorf("repo %s: %w", cfg.Name, err)
	}
	scratch, err := cfg.Infinitepush.NamespaceRegexp()
	if err != nil {
		return nil, fmt.Errorf("repo %s: %w", cfg.Name, err)
	}
	oracle, err := reachability.New(s, reachability.DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("repo %s: %w", cfg.Name, err)
	}
	hookManager, err := hooks.NewManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("repo %s: %w", cfg.Name, err)
	}

	repo := &Repo{
		name:         cfg.Name,
		store:        s,
		hooks:        hookManager,
		ancestry:     oracle,
		attrs:        attrs,
		infinitepush: cfg.Infinitepush,
		scratch:      scratch,
	}
	repo.rebaser = pushrebase.NewStoreRebaser(s, oracle, pushrebase.HooksFromConfig(s, cfg.Pushrebase)...)
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

// Name returns the repository name.
func (r *Repo) Name() string {
	return r.name
}

// Store returns the repository store.
func (r *Repo) Store() *store.Store {
	return r.store
}

// Ancestry returns the repository's ancestry oracle.
func (r *Repo) Ancestry() *reachability.Oracle {
	return r.ancestry
}

// KindOf classifies a bookmark name: names matching the infinitepush
// namespace are scratch, everything else is public.
func (r *Repo) KindOf(name ir.BookmarkName) ir.BookmarkKind {
	if r.scratch != nil && r.scratch.MatchString(string(name)) {
		return ir.BookmarkKindScratch
	}
	return ir.BookmarkKindPublic
}

// checkKind classifies the bookmark and enforces the visibility
// requirement and the infinitepush write switch.
func (r *Repo) checkKind(name ir.BookmarkName, req ir.VisibilityRequirement) (ir.BookmarkKind, error) {
	kind := r.KindOf(name)
	if !req.Permits(kind) {
		return kind, newError(ErrCodeRequirementMismatch, name,
			"bookmark is %s but the operation requires a %s bookmark", kind, req.Kind())
	}
	if kind == ir.BookmarkKindScratch && !r.infinitepush.AllowWrites {
		return kind, newError(ErrCodeInfinitepushDisabled, name, "infinitepush is not enabled for this repository")
	}
	return kind, nil
}

func (r *Repo) checkPermission(name ir.BookmarkName, client ir.ClientInfo) error {
	if !r.attrs.IsAllowedUser(client.User, name) {
		return newError(ErrCodePermissionDenied, name, "user %q is not permitted to move this bookmark", client.User)
	}
	return nil
}

// checkTarget ensures the target is stored or part of the push.
func (r *Repo) checkTarget(ctx context.Context, name ir.BookmarkName, target ir.ChangesetID, pushed []*ir.Changeset) error {
	for _, cs := range pushed {
		if cs.MustID() == target {
			return nil
		}
	}
	known, err := r.store.KnownChangesets(ctx, []ir.ChangesetID{target})
	if err != nil {
		return err
	}
	if !known[target] {
		return newError(ErrCodeInvalidChangeset, name, "target changeset %s is unknown", target.Short())
	}
	return nil
}

// checkFastForward verifies that target descends from old, taking the
// pushed changesets into account.
func (r *Repo) checkFastForward(ctx context.Context, name ir.BookmarkName, old, target ir.ChangesetID, pushed []*ir.Changeset) error {
	view, err := r.ancestry.WithPending(ctx, pushed)
	if err != nil {
		return err
	}
	ok, err := view.IsAncestor(ctx, old, target)
	if errors.Is(err, store.ErrNotFound) {
		return newError(ErrCodeInvalidChangeset, name, "cannot check fast-forward from %s to %s: %v", old.Short(), target.Short(), err)
	}
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrCodeNonFastForward, name, "%s is not a descendant of %s", target.Short(), old.Short())
	}
	return nil
}

func (r *Repo) runHooks(ctx context.Context, name ir.BookmarkName, kind ir.BookmarkKind, changesets []*ir.Changeset, pushvars ir.Pushvars) error {
	rejections, err := r.hooks.RunHooks(ctx, name, kind, changesets, pushvars)
	if err != nil {
		return fmt.Errorf("running hooks: %w", err)
	}
	if len(rejections) > 0 {
		return &Error{
			Code:       ErrCodeHookFailure,
			Bookmark:   name,
			Message:    fmt.Sprintf("%d hook rejection(s)", len(rejections)),
			Rejections: rejections,
		}
	}
	return nil
}

func commit(ctx context.Context, txn *store.Transaction, name ir.BookmarkName) error {
	ok, err := txn.Commit(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrCodeRaceLost, name, "bookmark changed while the push was being processed")
	}
	return nil
}
