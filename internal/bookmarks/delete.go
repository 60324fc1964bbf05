package bookmarks

import (
	"context"
	"log/slog"

	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/replay"
)

// DeleteBookmarkOp deletes a bookmark that must currently point at Old.
type DeleteBookmarkOp struct {
	Name        ir.BookmarkName
	Old         ir.ChangesetID
	Reason      ir.BookmarkUpdateReason
	Requirement ir.VisibilityRequirement
	Pushvars    ir.Pushvars
	ReplayData  *replay.Data
	Client      ir.ClientInfo
}

// Run performs the deletion. Scratch bookmarks and fast-forward-only
// bookmarks cannot be deleted.
func (op DeleteBookmarkOp) Run(ctx context.Context, repo *Repo) error {
	kind, err := repo.checkKind(op.Name, op.Requirement)
	if err != nil {
		return err
	}
	if kind == ir.BookmarkKindScratch {
		return newError(ErrCodeDeletionProhibited, op.Name, "scratch bookmarks cannot be deleted")
	}
	if repo.attrs.IsFastForwardOnly(op.Name) {
		return newError(ErrCodeDeletionProhibited, op.Name, "deletion of fast-forward-only bookmarks is not allowed")
	}
	if err := repo.checkPermission(op.Name, op.Client); err != nil {
		return err
	}

	data, err := replay.Encode(op.ReplayData)
	if err != nil {
		return err
	}
	txn := repo.store.NewTransaction()
	txn.Delete(op.Name, op.Old, kind, op.Reason)
	txn.SetReplayData(data)
	if err := commit(ctx, txn, op.Name); err != nil {
		return err
	}

	slog.Info("bookmark deleted",
		"repo", repo.name,
		"bookmark", op.Name,
		"from", op.Old.Short(),
		"reason", op.Reason,
	)
	return nil
}
