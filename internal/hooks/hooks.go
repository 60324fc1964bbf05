// Package hooks runs pluggable veto checks against the commits of a push
// before any of them reach storage.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/unbundle/internal/config"
	"github.com/roach88/unbundle/internal/ir"
)

// maxConcurrentRuns bounds hook executions in flight for one push.
const maxConcurrentRuns = 16

// Rejection is one hook veto against one changeset.
type Rejection struct {
	HookName        string         `json:"hook_name"`
	ChangesetID     ir.ChangesetID `json:"changeset_id"`
	Description     string         `json:"description"`
	LongDescription string         `json:"long_description,omitempty"`
}

// Input is what a hook sees for one changeset.
type Input struct {
	Bookmark    ir.BookmarkName
	ChangesetID ir.ChangesetID
	Changeset   *ir.Changeset
	Pushvars    ir.Pushvars
}

// Verdict is the outcome of a hook run. The zero value accepts.
type Verdict struct {
	Rejected        bool
	Description     string
	LongDescription string
}

// Accept returns an accepting verdict.
func Accept() Verdict {
	return Verdict{}
}

// Reject returns a rejecting verdict.
func Reject(description, longDescription string) Verdict {
	return Verdict{Rejected: true, Description: description, LongDescription: longDescription}
}

// Hook is a single check. Run returns an error only when the hook itself
// failed; a veto is a rejecting Verdict.
type Hook interface {
	Run(ctx context.Context, in Input) (Verdict, error)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx context.Context, in Input) (Verdict, error)

// Run calls f.
func (f HookFunc) Run(ctx context.Context, in Input) (Verdict, error) {
	return f(ctx, in)
}

// Bypass lets a push skip a hook, by a marker in the commit message or by
// a pushvar. A pushvar bypass is NAME=VALUE, or NAME alone meaning
// NAME=true.
type Bypass struct {
	CommitMessage string
	Pushvar       string
}

func (b Bypass) applies(cs *ir.Changeset, pushvars ir.Pushvars) bool {
	if b.CommitMessage != "" && strings.Contains(cs.Message, b.CommitMessage) {
		return true
	}
	if b.Pushvar != "" {
		name, want, ok := strings.Cut(b.Pushvar, "=")
		if !ok {
			want = "true"
		}
		if got, set := pushvars.Get(name); set && got == want {
			return true
		}
	}
	return false
}

type registered struct {
	hook   Hook
	bypass Bypass
}

// Manager holds the hooks of a repository and the bookmarks they apply to.
// It is safe for concurrent use once constructed.
type Manager struct {
	hooks map[string]registered
	attrs *config.BookmarkAttrs
	// global hooks run for every public bookmark
	global []string
}

// NewManager builds the hooks declared in cfg. Hooks bound to no bookmark
// are not run.
func NewManager(cfg *config.RepoConfig) (*Manager, error) {
	attrs, err := config.NewBookmarkAttrs(cfg.Bookmarks)
	if err != nil {
		return nil, fmt.Errorf("hooks: %w", err)
	}
	m := &Manager{hooks: make(map[string]registered, len(cfg.Hooks)), attrs: attrs}
	for _, p := range cfg.Hooks {
		h, err := NewBuiltin(p.Type, p.Config)
		if err != nil {
			return nil, fmt.Errorf("hooks: %s: %w", p.Name, err)
		}
		m.hooks[p.Name] = registered{
			hook:   h,
			bypass: Bypass{CommitMessage: p.BypassCommitMessage, Pushvar: p.BypassPushvar},
		}
	}
	return m, nil
}

// Register adds a hook that runs for every public bookmark, in addition to
// the configured bookmark bindings. Must be called before the Manager is
// shared.
func (m *Manager) Register(name string, h Hook, bypass Bypass) {
	if m.hooks == nil {
		m.hooks = make(map[string]registered)
	}
	m.hooks[name] = registered{hook: h, bypass: bypass}
	m.global = append(m.global, name)
}

// HooksFor returns the hook names that run for a bookmark.
func (m *Manager) HooksFor(bookmark ir.BookmarkName) []string {
	names := append([]string(nil), m.global...)
	if m.attrs != nil {
		for _, n := range m.attrs.HooksFor(bookmark) {
			if !slices.Contains(names, n) {
				names = append(names, n)
			}
		}
	}
	return names
}

// RunHooks runs every hook bound to bookmark against every changeset.
//
// Scratch bookmarks are not subject to hooks. Rejections are returned
// sorted by hook name and then by changeset order; an empty result means
// the push may proceed. Hook failures (as opposed to vetoes) are returned as
// an error.
func (m *Manager) RunHooks(ctx context.Context, bookmark ir.BookmarkName, kind ir.BookmarkKind, changesets []*ir.Changeset, pushvars ir.Pushvars) ([]Rejection, error) {
	if m == nil || kind == ir.BookmarkKindScratch || len(changesets) == 0 {
		return nil, nil
	}
	names := m.HooksFor(bookmark)
	if len(names) == 0 {
		return nil, nil
	}

	type job struct {
		hook  string
		order int
		in    Input
	}
	var jobs []job
	for _, name := range names {
		reg, ok := m.hooks[name]
		if !ok {
			return nil, fmt.Errorf("hooks: unknown hook %q bound to %s", name, bookmark)
		}
		for i, cs := range changesets {
			id, err := cs.ID()
			if err != nil {
				return nil, fmt.Errorf("hooks: changeset %d: %w", i, err)
			}
			if reg.bypass.applies(cs, pushvars) {
				slog.Debug("hook bypassed", "hook", name, "changeset", id.Short())
				continue
			}
			jobs = append(jobs, job{
				hook:  name,
				order: i,
				in: Input{
					Bookmark:    bookmark,
					ChangesetID: id,
					Changeset:   cs,
					Pushvars:    pushvars,
				},
			})
		}
	}

	verdicts := make([]Verdict, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRuns)
	for i, j := range jobs {
		g.Go(func() error {
			v, err := m.hooks[j.hook].hook.Run(gctx, j.in)
			if err != nil {
				return fmt.Errorf("hook %s on %s: %w", j.hook, j.in.ChangesetID.Short(), err)
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rejections []Rejection
	order := make(map[ir.ChangesetID]int, len(jobs))
	for i, j := range jobs {
		order[j.in.ChangesetID] = j.order
		if !verdicts[i].Rejected {
			continue
		}
		rejections = append(rejections, Rejection{
			HookName:        j.hook,
			ChangesetID:     j.in.ChangesetID,
			Description:     verdicts[i].Description,
			LongDescription: verdicts[i].LongDescription,
		})
	}
	sort.SliceStable(rejections, func(a, b int) bool {
		if rejections[a].HookName != rejections[b].HookName {
			return rejections[a].HookName < rejections[b].HookName
		}
		return order[rejections[a].ChangesetID] < order[rejections[b].ChangesetID]
	})
	return rejections, nil
}
