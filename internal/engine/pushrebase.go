package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/unbundle/internal/bookmarks"
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/pushrebase"
)

func (e *Engine) runPushrebase(ctx context.Context, req request, action PostResolvePushRebase) (*PushRebaseResponse, error) {
	slog.Debug("unbundle processing: running pushrebase",
		"repo", e.repo.Name(),
		"request_id", req.id,
	)
	if action.BookmarkSpec == nil {
		return nil, errorf("pushrebase without a bookmark spec")
	}
	onto := action.BookmarkSpec.BookmarkName()

	var (
		head  ir.ChangesetID
		pairs []ir.RebasePair
		err   error
	)
	switch spec := action.BookmarkSpec.(type) {
	case NormalPushrebase:
		// conflicts and hook errors keep their codes, so no context here
		head, pairs, err = e.normalPushrebase(ctx, req, spec.Onto, action)
	case ForcePushrebase:
		head, pairs, err = e.forcePushrebase(ctx, req, spec.Push, action)
		err = withContext(err, "While doing a force pushrebase")
	default:
		return nil, errorf("unknown pushrebase bookmark spec %T", spec)
	}
	if err != nil {
		return nil, err
	}

	if err := e.store.MarkPublic(ctx, head); err != nil {
		return nil, withContext(err, "While marking pushrebased changeset as public")
	}

	newIDs := make([]ir.ChangesetID, len(pairs))
	for i, p := range pairs {
		newIDs[i] = p.NewID
	}
	e.logCommitsToScribe(ctx, req, onto, newIDs, e.cfg.Pushrebase.CommitScribeCategory)

	if pairs == nil {
		pairs = []ir.RebasePair{}
	}
	return &PushRebaseResponse{
		CommonHeads:           action.CommonHeads,
		PushrebasedRev:        head,
		PushrebasedChangesets: pairs,
		Onto:                  onto,
		BookmarkPushPartID:    action.BookmarkPushPartID,
	}, nil
}

func (e *Engine) normalPushrebase(ctx context.Context, req request, onto ir.BookmarkName, action PostResolvePushRebase) (ir.ChangesetID, []ir.RebasePair, error) {
	if _, err := changesetIDs(action.UploadedChangesets); err != nil {
		return "", nil, err
	}
	outcome, err := bookmarks.PushrebaseOntoBookmarkOp{
		Name:       onto,
		Changesets: action.UploadedChangesets,
		Pushvars:   action.Pushvars,
		ReplayData: action.ReplayData,
		Client:     req.client,
	}.Run(ctx, e.repo)
	if err == nil {
		return outcome.Head, outcome.RebasedChangesets, nil
	}

	var conflicts *pushrebase.ConflictsError
	switch {
	case errors.As(err, &conflicts):
		return "", nil, &ResolverError{Code: ErrCodePushrebaseConflicts, Conflicts: conflicts.Conflicts, Err: err}
	case bookmarks.IsHookFailure(err):
		return "", nil, hookError(ctx, err, action.HookRejectionRemapper)
	default:
		return "", nil, asResolverError(err)
	}
}

// forcePushrebase moves the bookmark straight to the pushed target. No
// commit is rewritten, so the rebase mapping is empty.
func (e *Engine) forcePushrebase(ctx context.Context, req request, bp PlainBookmarkPush, action PostResolvePushRebase) (ir.ChangesetID, []ir.RebasePair, error) {
	if bp.New.IsZero() {
		return "", nil, errorf("new changeset is required for force pushrebase")
	}
	newIDs, err := changesetIDs(action.UploadedChangesets)
	if err != nil {
		return "", nil, err
	}

	err = e.plainPushBookmark(ctx, req, plainMove{
		push:          bp,
		newChangesets: action.UploadedChangesets,
		policy:        ir.NonFastForwardAllowed,
		reason:        ir.ReasonPushrebase,
		pushvars:      action.Pushvars,
		replayData:    action.ReplayData,
		remapper:      action.HookRejectionRemapper,
	})
	if err != nil {
		return "", nil, err
	}

	e.logCommitsToScribe(ctx, req, bp.Name, newIDs, e.cfg.Pushrebase.CommitScribeCategory)
	return bp.New, nil, nil
}

func (e *Engine) runBookmarkOnlyPushrebase(ctx context.Context, req request, action PostResolveBookmarkOnlyPushRebase) (*BookmarkOnlyPushRebaseResponse, error) {
	slog.Debug("unbundle processing: running bookmark-only pushrebase",
		"repo", e.repo.Name(),
		"request_id", req.id,
	)

	err := e.plainPushBookmark(ctx, req, plainMove{
		push:       action.BookmarkPush,
		policy:     action.NonFastForwardPolicy,
		reason:     ir.ReasonPushrebase,
		pushvars:   action.Pushvars,
		replayData: replayDataFor(action.RawBundleID),
		remapper:   action.HookRejectionRemapper,
	})
	if err != nil {
		return nil, err
	}
	return &BookmarkOnlyPushRebaseResponse{BookmarkPushPartID: action.BookmarkPush.PartID}, nil
}
