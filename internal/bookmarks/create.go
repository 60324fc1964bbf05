package bookmarks

import (
	"context"
	"log/slog"

	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/replay"
)

// CreateBookmarkOp creates a bookmark that must not exist yet.
type CreateBookmarkOp struct {
	Name          ir.BookmarkName
	Target        ir.ChangesetID
	Reason        ir.BookmarkUpdateReason
	Requirement   ir.VisibilityRequirement
	NewChangesets []*ir.Changeset
	Pushvars      ir.Pushvars
	ReplayData    *replay.Data
	Client        ir.ClientInfo
}

// Run performs the creation.
func (op CreateBookmarkOp) Run(ctx context.Context, repo *Repo) error {
	kind, err := repo.checkKind(op.Name, op.Requirement)
	if err != nil {
		return err
	}
	if err := repo.checkPermission(op.Name, op.Client); err != nil {
		return err
	}
	if err := repo.checkTarget(ctx, op.Name, op.Target, op.NewChangesets); err != nil {
		return err
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
	txn.Create(op.Name, op.Target, kind, op.Reason)
	txn.SetReplayData(data)
	if err := commit(ctx, txn, op.Name); err != nil {
		return err
	}

	slog.Info("bookmark created",
		"repo", repo.name,
		"bookmark", op.Name,
		"kind", kind,
		"to", op.Target.Short(),
		"reason", op.Reason,
	)
	return nil
}
