package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/unbundle/internal/bookmarks"
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/replay"
)

func (e *Engine) runInfinitepush(ctx context.Context, req request, action PostResolveInfinitePush) (*InfinitePushResponse, error) {
	slog.Debug("unbundle processing: running infinitepush",
		"repo", e.repo.Name(),
		"request_id", req.id,
	)

	newIDs, err := changesetIDs(action.UploadedChangesets)
	if err != nil {
		return nil, err
	}
	if !action.IsCrossBackendSync {
		e.saveToReverseFillerQueue(ctx, req, action.RawBundleID)
	}
	if err := e.storeMutations(ctx, action.UploadedNativeIDs, action.Mutations); err != nil {
		return nil, err
	}

	var bookmark ir.BookmarkName
	if bp := action.BookmarkPush; bp != nil {
		if err := e.infinitepushScratchBookmark(ctx, req, *bp, action.UploadedChangesets, replayDataFor(action.RawBundleID)); err != nil {
			return nil, err
		}
		bookmark = bp.Name
	} else if err := e.saveChangesets(ctx, action.UploadedChangesets); err != nil {
		return nil, err
	}

	e.logCommitsToScribe(ctx, req, bookmark, newIDs, e.cfg.Infinitepush.CommitScribeCategory)
	return &InfinitePushResponse{ChangegroupID: action.ChangegroupID}, nil
}

// infinitepushScratchBookmark creates or moves a scratch bookmark. Hooks
// never run for scratch bookmarks.
func (e *Engine) infinitepushScratchBookmark(ctx context.Context, req request, bp InfiniteBookmarkPush, uploaded []*ir.Changeset, data *replay.Data) error {
	if bp.Old.IsZero() && bp.Create {
		err := bookmarks.CreateBookmarkOp{
			Name:          bp.Name,
			Target:        bp.New,
			Reason:        ir.ReasonPush,
			Requirement:   ir.OnlyIfScratch,
			NewChangesets: uploaded,
			ReplayData:    data,
			Client:        req.client,
		}.Run(ctx, e.repo)
		return withContext(err, "Failed to create scratch bookmark")
	}

	if bp.Old.IsZero() {
		return errorf("Unknown bookmark: %s. Use --create to create one.", bp.Name)
	}
	policy := ir.FastForwardOnly
	if bp.Force {
		policy = ir.AnyPermittedByConfig
	}
	err := bookmarks.UpdateBookmarkOp{
		Name:          bp.Name,
		Old:           bp.Old,
		New:           bp.New,
		Reason:        ir.ReasonPush,
		Requirement:   ir.OnlyIfScratch,
		Policy:        policy,
		NewChangesets: uploaded,
		ReplayData:    data,
		Client:        req.client,
	}.Run(ctx, e.repo)
	if bp.Force {
		return withContext(err, "Failed to move scratch bookmark")
	}
	return withContext(err, "Failed to fast-forward scratch bookmark (try --force?)")
}
