// Package pushrebase rebases a pushed stack of commits onto the current
// head of a bookmark at apply time, so clients never race each other on
// linear history.
//
// The Rebaser interface is the contract the push engine consumes.
// StoreRebaser implements it over the SQLite store: it detects file-level
// conflicts against commits that landed since the stack's base, rewrites
// the stack on top of the bookmark, and moves the bookmark in a single
// compare-and-swap transaction.
package pushrebase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/reachability"
	"github.com/roach88/unbundle/internal/replay"
	"github.com/roach88/unbundle/internal/store"
)

// Request describes one pushrebase.
type Request struct {
	Onto       ir.BookmarkName
	Changesets []*ir.Changeset
	Pushvars   ir.Pushvars
	ReplayData *replay.Data
}

// Outcome is a successful pushrebase. RebasedChangesets maps every pushed
// changeset to its rewritten copy, in topological order. It is empty when
// no changesets were pushed.
type Outcome struct {
	OldHead           ir.ChangesetID
	Head              ir.ChangesetID
	RebasedChangesets []ir.RebasePair
}

// Rebaser performs pushrebases. Implementations return *ConflictsError,
// *HookRejectedError or *RaceError for the structured failure cases.
type Rebaser interface {
	Rebase(ctx context.Context, req Request) (Outcome, error)
}

// StoreRebaser is a Rebaser backed by the repository store.
type StoreRebaser struct {
	store    *store.Store
	ancestry *reachability.Oracle
	hooks    []HookFactory
}

// NewStoreRebaser creates a rebaser. hooks are instantiated per request.
func NewStoreRebaser(s *store.Store, ancestry *reachability.Oracle, hooks ...HookFactory) *StoreRebaser {
	return &StoreRebaser{store: s, ancestry: ancestry, hooks: hooks}
}

// Rebase implements Rebaser.
func (r *StoreRebaser) Rebase(ctx context.Context, req Request) (Outcome, error) {
	bookmark, found, err := r.store.GetBookmark(ctx, req.Onto)
	if err != nil {
		return Outcome{}, fmt.Errorf("pushrebase: %w", err)
	}
	if !found {
		return Outcome{}, fmt.Errorf("pushrebase: bookmark %s does not exist", req.Onto)
	}
	head := bookmark.Target

	if len(req.Changesets) == 0 {
		return Outcome{OldHead: head, Head: head}, nil
	}

	stack, err := ir.SortTopologically(req.Changesets)
	if err != nil {
		return Outcome{}, fmt.Errorf("pushrebase: %w", err)
	}
	root, err := singleRoot(stack)
	if err != nil {
		return Outcome{}, err
	}
	if heads := ir.Heads(stack); len(heads) != 1 {
		return Outcome{}, fmt.Errorf("pushrebase: expected a single head, got %d", len(heads))
	}
	base := root.Parents[0]

	if err := r.checkConflicts(ctx, stack, head, base); err != nil {
		return Outcome{}, err
	}

	hooks := make([]CommitHook, 0, len(r.hooks))
	for _, f := range r.hooks {
		h, err := f(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("pushrebase: %w", err)
		}
		hooks = append(hooks, h)
	}

	rebased, pairs, err := rewrite(ctx, stack, root, base, head, hooks)
	if err != nil {
		return Outcome{}, err
	}
	newHead := pairs[len(pairs)-1].NewID

	txn := r.store.NewTransaction()
	txn.AddChangesets(rebased...)
	txn.Update(req.Onto, head, newHead, ir.BookmarkKindPublic, ir.ReasonPushrebase)
	data, err := replay.Encode(req.ReplayData.WithTimestamps(stack))
	if err != nil {
		return Outcome{}, fmt.Errorf("pushrebase: %w", err)
	}
	txn.SetReplayData(data)
	for _, h := range hooks {
		if err := h.Finish(ctx, txn, rebased); err != nil {
			return Outcome{}, fmt.Errorf("pushrebase: %w", err)
		}
	}

	ok, err := txn.Commit(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("pushrebase: %w", err)
	}
	if !ok {
		return Outcome{}, &RaceError{Bookmark: req.Onto, Expected: head}
	}

	slog.Debug("pushrebase landed",
		"bookmark", req.Onto,
		"old_head", head.Short(),
		"new_head", newHead.Short(),
		"commits", len(pairs),
	)
	return Outcome{OldHead: head, Head: newHead, RebasedChangesets: pairs}, nil
}

func singleRoot(stack []*ir.Changeset) (*ir.Changeset, error) {
	roots := ir.Roots(stack)
	if len(roots) != 1 {
		return nil, fmt.Errorf("pushrebase: expected a single root, got %d", len(roots))
	}
	root := roots[0]
	if len(root.Parents) != 1 {
		return nil, fmt.Errorf("pushrebase: root %s must have exactly one parent, has %d", root.MustID().Short(), len(root.Parents))
	}
	return root, nil
}

// checkConflicts compares the paths the stack changes with the paths
// changed on the server between base and head.
func (r *StoreRebaser) checkConflicts(ctx context.Context, stack []*ir.Changeset, head, base ir.ChangesetID) error {
	serverSide, err := r.ancestry.Difference(ctx, head, base)
	if err != nil {
		return fmt.Errorf("pushrebase: %w", err)
	}
	if len(serverSide) == 0 {
		return nil
	}

	var left []string
	for _, cs := range stack {
		left = append(left, cs.ChangedPaths()...)
	}
	slices.Sort(left)
	left = slices.Compact(left)

	var right []string
	for _, id := range serverSide {
		cs, err := r.store.Changeset(ctx, id)
		if err != nil {
			return fmt.Errorf("pushrebase: %w", err)
		}
		right = append(right, cs.ChangedPaths()...)
	}
	slices.Sort(right)
	right = slices.Compact(right)

	var conflicts []Conflict
	for _, l := range left {
		for _, rp := range right {
			if ir.PathsConflict(l, rp) {
				conflicts = append(conflicts, Conflict{Left: l, Right: rp})
			}
		}
	}
	if len(conflicts) > 0 {
		return &ConflictsError{Conflicts: conflicts}
	}
	return nil
}

// rewrite re-parents the stack onto head. The root's base parent becomes
// head; parents inside the stack follow their rewritten copies.
func rewrite(ctx context.Context, stack []*ir.Changeset, root *ir.Changeset, base, head ir.ChangesetID, hooks []CommitHook) ([]*ir.Changeset, []ir.RebasePair, error) {
	rootID := root.MustID()
	mapping := make(map[ir.ChangesetID]ir.ChangesetID, len(stack))
	rebased := make([]*ir.Changeset, 0, len(stack))
	pairs := make([]ir.RebasePair, 0, len(stack))

	for _, cs := range stack {
		oldID := cs.MustID()
		nc := cs.Clone()
		for i, p := range nc.Parents {
			if newP, ok := mapping[p]; ok {
				nc.Parents[i] = newP
			} else if oldID == rootID && p == base {
				nc.Parents[i] = head
			}
		}
		for _, h := range hooks {
			if err := h.Rewrite(ctx, cs, nc); err != nil {
				return nil, nil, err
			}
		}
		newID, err := nc.ID()
		if err != nil {
			return nil, nil, fmt.Errorf("pushrebase: %w", err)
		}
		mapping[oldID] = newID
		rebased = append(rebased, nc)
		pairs = append(pairs, ir.RebasePair{OldID: oldID, NewID: newID})
	}
	return rebased, pairs, nil
}
