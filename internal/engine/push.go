package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/unbundle/internal/bookmarks"
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/replay"
)

func (e *Engine) runPush(ctx context.Context, req request, action PostResolvePush) (*PushResponse, error) {
	slog.Debug("unbundle processing: running push",
		"repo", e.repo.Name(),
		"request_id", req.id,
	)

	if len(action.BookmarkPushes) > 1 {
		names := make([]ir.BookmarkName, len(action.BookmarkPushes))
		for i, bp := range action.BookmarkPushes {
			names[i] = bp.Name
		}
		return nil, errorf("only push to at most one bookmark is allowed, got %v", names)
	}

	newIDs, err := changesetIDs(action.UploadedChangesets)
	if err != nil {
		return nil, err
	}
	if err := e.storeMutations(ctx, action.UploadedNativeIDs, action.Mutations); err != nil {
		return nil, err
	}

	resp := &PushResponse{ChangegroupID: action.ChangegroupID, BookmarkIDs: []ir.PartID{}}
	var bookmark ir.BookmarkName
	if len(action.BookmarkPushes) == 1 {
		bp := action.BookmarkPushes[0]
		err := e.plainPushBookmark(ctx, req, plainMove{
			push:          bp,
			newChangesets: action.UploadedChangesets,
			policy:        action.NonFastForwardPolicy,
			reason:        ir.ReasonPush,
			pushvars:      action.Pushvars,
			replayData:    replayDataFor(action.RawBundleID),
			remapper:      action.HookRejectionRemapper,
		})
		if err != nil {
			return nil, err
		}
		resp.BookmarkIDs = append(resp.BookmarkIDs, bp.PartID)
		bookmark = bp.Name
	} else if err := e.saveChangesets(ctx, action.UploadedChangesets); err != nil {
		return nil, err
	}

	e.logCommitsToScribe(ctx, req, bookmark, newIDs, e.cfg.Push.CommitScribeCategory)
	return resp, nil
}

// plainMove is a public bookmark move requested by a push, a force
// pushrebase or a bookmark-only pushrebase.
type plainMove struct {
	push          PlainBookmarkPush
	newChangesets []*ir.Changeset
	policy        ir.NonFastForwardPolicy
	reason        ir.BookmarkUpdateReason
	pushvars      ir.Pushvars
	replayData    *replay.Data
	remapper      HookRejectionRemapper
}

// plainPushBookmark runs the bookmark op for a plain move. Uploaded
// changesets are stored by the op's transaction, or on their own when the
// move deletes the bookmark or does nothing.
func (e *Engine) plainPushBookmark(ctx context.Context, req request, m plainMove) error {
	bp := m.push
	switch {
	case bp.Old.IsZero() && !bp.New.IsZero():
		err := bookmarks.CreateBookmarkOp{
			Name:          bp.Name,
			Target:        bp.New,
			Reason:        m.reason,
			Requirement:   ir.OnlyIfPublic,
			NewChangesets: m.newChangesets,
			Pushvars:      m.pushvars,
			ReplayData:    m.replayData,
			Client:        req.client,
		}.Run(ctx, e.repo)
		if bookmarks.IsHookFailure(err) {
			return hookError(ctx, err, m.remapper)
		}
		return withContext(err, "Failed to create bookmark")

	case !bp.Old.IsZero() && !bp.New.IsZero():
		err := bookmarks.UpdateBookmarkOp{
			Name:          bp.Name,
			Old:           bp.Old,
			New:           bp.New,
			Reason:        m.reason,
			Requirement:   ir.OnlyIfPublic,
			Policy:        ir.UpdatePolicyFor(m.policy),
			NewChangesets: m.newChangesets,
			Pushvars:      m.pushvars,
			ReplayData:    m.replayData,
			Client:        req.client,
		}.Run(ctx, e.repo)
		if bookmarks.IsHookFailure(err) {
			return hookError(ctx, err, m.remapper)
		}
		if m.policy == ir.NonFastForwardAllowed {
			return withContext(err, "Failed to move bookmark")
		}
		return withContext(err, "Failed to fast-forward bookmark (set pushvar NON_FAST_FORWARD=true for a non-fast-forward move)")

	case !bp.Old.IsZero():
		err := bookmarks.DeleteBookmarkOp{
			Name:        bp.Name,
			Old:         bp.Old,
			Reason:      m.reason,
			Requirement: ir.OnlyIfPublic,
			Pushvars:    m.pushvars,
			ReplayData:  m.replayData,
			Client:      req.client,
		}.Run(ctx, e.repo)
		if err != nil {
			return withContext(err, "Failed to delete bookmark")
		}
		return e.saveChangesets(ctx, m.newChangesets)

	default:
		return e.saveChangesets(ctx, m.newChangesets)
	}
}
