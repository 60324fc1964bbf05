package bookmarks

import (
	"context"
	"log/slog"

	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/replay"
)

// UpdateBookmarkOp moves a bookmark that must currently point at Old.
type UpdateBookmarkOp struct {
	Name          ir.BookmarkName
	Old           ir.ChangesetID
	New           ir.ChangesetID
	Reason        ir.BookmarkUpdateReason
	Requirement   ir.VisibilityRequirement
	Policy        ir.BookmarkUpdatePolicy
	NewChangesets []*ir.Changeset
	Pushvars      ir.Pushvars
	ReplayData    *replay.Data
	Client        ir.ClientInfo
}

// Run performs the move.
//
// The stored value is not read beforehand: the transaction's
// compare-and-swap against Old decides, so a stale Old always yields
// ErrCodeRaceLost.
func (op UpdateBookmarkOp) Run(ctx context.Context, repo *Repo) error {
	kind, err := repo.checkKind(op.Name, op.Requirement)
	if err != nil {
		return err
	}
	if err := repo.checkPermission(op.Name, op.Client); err != nil {
		return err
	}
	if err := repo.checkTarget(ctx, op.Name, op.New, op.NewChangesets); err != nil {
		return err
	}

	policy := op.Policy
	if kind == ir.BookmarkKindPublic && repo.attrs.IsFastForwardOnly(op.Name) {
		policy = ir.FastForwardOnly
	}
	if policy == ir.FastForwardOnly {
		if err := repo.checkFastForward(ctx, op.Name, op.Old, op.New, op.NewChangesets); err != nil {
			return err
		}
	}

	if err := repo.runHooks(ctx, op.Name, kind, op.NewChangesets, op.Pushvars); err != nil {
		return err
	}

	data, err := replay.Encode(op.ReplayData)
	if err != nil {
		return err
	}
	txn := repo.store.NewTransaction()
	txn.AddChangesets(op.NewChangesets...)
	txn.Update(op.Name, op.Old, op.New, kind, op.Reason)
	txn.SetReplayData(data)
	if err := commit(ctx, txn, op.Name); err != nil {
		return err
	}

	slog.Info("bookmark moved",
		"repo", repo.name,
		"bookmark", op.Name,
		"kind", kind,
		"from", op.Old.Short(),
		"to", op.New.Short(),
		"policy", policy,
		"reason", op.Reason,
	)
	return nil
}
