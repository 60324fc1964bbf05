package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/scribe"
)

// logCommitsToScribe queues an audit record for every changeset in the
// background. An empty category discards them.
func (e *Engine) logCommitsToScribe(ctx context.Context, req request, bookmark ir.BookmarkName, changesets []ir.ChangesetID, category string) {
	queue := scribe.NewLogToScribe(e.scribe, category)
	if queue == scribe.Discard || len(changesets) == 0 {
		return
	}
	push := scribe.PushInfo{
		RepoName: e.repo.Name(),
		Bookmark: bookmark,
		Client:   req.client,
		Received: req.received,
	}
	e.spawn(ctx, req, "commit_scribe", func(ctx context.Context) error {
		return scribe.LogCommits(ctx, e.store, queue, push, changesets)
	})
}

// saveToReverseFillerQueue preserves the raw bundle in the background.
// A configured queue without a bundle id is a misconfiguration that is
// only warned about.
func (e *Engine) saveToReverseFillerQueue(ctx context.Context, req request, bundle ir.RawBundleID) {
	if e.fillerQueue == nil {
		return
	}
	if bundle == "" {
		slog.Warn("reverse filler queue enabled, but bundle preservation is not!",
			"repo", e.repo.Name(),
			"request_id", req.id,
		)
		return
	}
	repoName := e.repo.Name()
	e.spawn(ctx, req, "reverse_filler_queue", func(ctx context.Context) error {
		slog.Debug("saving infinitepush bundle into the reverse filler queue",
			"repo", repoName,
			"request_id", req.id,
			"bundle", bundle,
		)
		_, err := e.fillerQueue.InsertBundle(ctx, repoName, bundle)
		return err
	})
}
