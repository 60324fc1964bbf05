package scribe

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/unbundle/internal/ir"
)

// maxConcurrentLookups bounds graph lookups in flight for one push.
const maxConcurrentLookups = 16

// CommitGraph is the part of the commit graph LogCommits reads.
type CommitGraph interface {
	Generation(ctx context.Context, id ir.ChangesetID) (int64, error)
	Parents(ctx context.Context, id ir.ChangesetID) ([]ir.ChangesetID, error)
}

// PushInfo describes the push the commits arrived with.
type PushInfo struct {
	RepoName string
	Bookmark ir.BookmarkName
	Client   ir.ClientInfo
	Received time.Time
}

// LogCommits queues one CommitInfo per changeset. Generation and parents
// of each changeset are looked up concurrently. The first failure is
// returned once all lookups have finished; records already queued stay
// queued.
func LogCommits(ctx context.Context, graph CommitGraph, queue Queue, push PushInfo, changesets []ir.ChangesetID) error {
	if len(changesets) == 0 || queue == Discard {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for _, id := range changesets {
		g.Go(func() error {
			info, err := commitInfo(ctx, graph, push, id)
			if err != nil {
				return err
			}
			return queue.QueueCommit(ctx, info)
		})
	}
	return g.Wait()
}

func commitInfo(ctx context.Context, graph CommitGraph, push PushInfo, id ir.ChangesetID) (CommitInfo, error) {
	var (
		generation int64
		parents    []ir.ChangesetID
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		generation, err = graph.Generation(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		parents, err = graph.Parents(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return CommitInfo{}, fmt.Errorf("commit info %s: %w", id.Short(), err)
	}
	if parents == nil {
		parents = []ir.ChangesetID{}
	}

	return CommitInfo{
		RepoName:          push.RepoName,
		Bookmark:          push.Bookmark,
		Generation:        generation,
		ChangesetID:       id,
		Parents:           parents,
		User:              push.Client.User,
		Hostname:          push.Client.Hostname,
		ReceivedTimestamp: push.Received.UTC(),
	}, nil
}
