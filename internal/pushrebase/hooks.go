package pushrebase

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/unbundle/internal/config"
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/store"
)

// GlobalrevExtra is the extra holding a changeset's globalrev.
const GlobalrevExtra = "global_rev"

// CommitHook runs during a single pushrebase. Rewrite is called for every
// rebased changeset in topological order before its id is computed; Finish
// is called once with the final changesets and may add writes to the
// bookmark transaction.
type CommitHook interface {
	Rewrite(ctx context.Context, original, rebased *ir.Changeset) error
	Finish(ctx context.Context, txn *store.Transaction, rebased []*ir.Changeset) error
}

// HookFactory creates a fresh CommitHook for each pushrebase.
type HookFactory func(ctx context.Context) (CommitHook, error)

// HooksFromConfig returns the commit hooks enabled by params.
func HooksFromConfig(s *store.Store, params config.PushrebaseParams) []HookFactory {
	var out []HookFactory
	if params.BlockMerges {
		out = append(out, func(context.Context) (CommitHook, error) {
			return blockMerges{}, nil
		})
	}
	if params.AssignGlobalrevs {
		start := max(params.GlobalrevStart, 1)
		out = append(out, func(ctx context.Context) (CommitHook, error) {
			return newGlobalrevHook(ctx, s, start)
		})
	}
	return out
}

type blockMerges struct{}

func (blockMerges) Rewrite(_ context.Context, original, _ *ir.Changeset) error {
	if original.IsMerge() {
		return &HookRejectedError{
			Hook:        "block_merges",
			ChangesetID: original.MustID(),
			Reason:      "merge commits are not allowed in pushrebase",
		}
	}
	return nil
}

func (blockMerges) Finish(context.Context, *store.Transaction, []*ir.Changeset) error {
	return nil
}

// globalrevHook assigns consecutive globalrevs to rebased changesets. The
// next free globalrev is read before the transaction; if another push takes
// it first, the transaction reports a lost race.
type globalrevHook struct {
	next int64
}

func newGlobalrevHook(ctx context.Context, s *store.Store, start int64) (*globalrevHook, error) {
	current, err := s.MaxGlobalrev(ctx)
	if err != nil {
		return nil, fmt.Errorf("globalrev hook: %w", err)
	}
	return &globalrevHook{next: max(current+1, start)}, nil
}

func (h *globalrevHook) Rewrite(_ context.Context, original, rebased *ir.Changeset) error {
	if original.IsMerge() {
		return &HookRejectedError{
			Hook:        "globalrev",
			ChangesetID: original.MustID(),
			Reason:      "globalrevs cannot be assigned to merge commits",
		}
	}
	if rebased.Extras == nil {
		rebased.Extras = map[string]string{}
	}
	rebased.Extras[GlobalrevExtra] = strconv.FormatInt(h.next, 10)
	h.next++
	return nil
}

func (h *globalrevHook) Finish(_ context.Context, txn *store.Transaction, rebased []*ir.Changeset) error {
	revs := make(map[ir.ChangesetID]int64, len(rebased))
	for _, cs := range rebased {
		rev, err := strconv.ParseInt(cs.Extras[GlobalrevExtra], 10, 64)
		if err != nil {
			return fmt.Errorf("globalrev hook: %s: %w", cs.MustID().Short(), err)
		}
		revs[cs.MustID()] = rev
	}
	txn.AddGlobalrevs(revs)
	return nil
}
