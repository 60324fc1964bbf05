// Package scribe publishes per-commit audit records to named categories.
//
// Logging is best effort: callers record failures and move on, a push is
// never failed because its commits could not be logged.
package scribe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/unbundle/internal/ir"
)

// CommitInfo is the audit record written for every commit a push
// introduces.
type CommitInfo struct {
	RepoName          string           `json:"repo_name"`
	Bookmark          ir.BookmarkName  `json:"bookmark,omitempty"`
	Generation        int64            `json:"generation"`
	ChangesetID       ir.ChangesetID   `json:"changeset_id"`
	Parents           []ir.ChangesetID `json:"parents"`
	User              string           `json:"user_unix_name,omitempty"`
	Hostname          string           `json:"source_hostname,omitempty"`
	ReceivedTimestamp time.Time        `json:"received_timestamp"`
}

// Client delivers raw messages to a category.
type Client interface {
	Offer(ctx context.Context, category string, message []byte) error
}

// Queue accepts commit records.
type Queue interface {
	QueueCommit(ctx context.Context, info CommitInfo) error
}

// LogToScribe serializes commit records to JSON and offers them to a
// client under a fixed category.
type LogToScribe struct {
	client   Client
	category string
}

// NewLogToScribe returns a queue writing to category. An empty category or
// a nil client yields a queue that discards everything.
func NewLogToScribe(client Client, category string) Queue {
	if client == nil || category == "" {
		return Discard
	}
	return &LogToScribe{client: client, category: category}
}

// QueueCommit implements Queue.
func (q *LogToScribe) QueueCommit(ctx context.Context, info CommitInfo) error {
	msg, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("scribe: encode commit %s: %w", info.ChangesetID.Short(), err)
	}
	if err := q.client.Offer(ctx, q.category, msg); err != nil {
		return fmt.Errorf("scribe: %s: %w", q.category, err)
	}
	return nil
}

// Discard drops every record.
var Discard Queue = discardQueue{}

type discardQueue struct{}

func (discardQueue) QueueCommit(context.Context, CommitInfo) error {
	return nil
}
