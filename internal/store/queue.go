package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/unbundle/internal/ir"
)

// QueuedBundle is a raw bundle waiting to be replayed to a sibling repo.
type QueuedBundle struct {
	ID        int64          `json:"id"`
	RepoName  string         `json:"repo_name"`
	BundleID  ir.RawBundleID `json:"bundle_id"`
	CreatedAt int64          `json:"created_at"`
}

// InsertBundle appends a raw bundle to the reverse filler queue and returns
// its queue id.
func (s *Store) InsertBundle(ctx context.Context, repoName string, bundle ir.RawBundleID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reverse_filler_queue (repo_name, bundle_id, created_at)
		VALUES (?, ?, ?)
	`, repoName, string(bundle), s.nowMillis())
	if err != nil {
		return 0, fmt.Errorf("insert bundle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert bundle: %w", err)
	}
	return id, nil
}

// QueuedBundles returns queued bundles for a repo, oldest first.
// An empty repoName lists every repo. A non-positive limit lists everything.
func (s *Store) QueuedBundles(ctx context.Context, repoName string, limit int) ([]QueuedBundle, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, repo_name, bundle_id, created_at FROM reverse_filler_queue`
	var args []any
	if repoName != "" {
		query += ` WHERE repo_name = ?`
		args = append(args, repoName)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queued bundles: %w", err)
	}
	defer rows.Close()

	var out []QueuedBundle
	for rows.Next() {
		var (
			b        QueuedBundle
			bundleID string
		)
		if err := rows.Scan(&b.ID, &b.RepoName, &bundleID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("queued bundles: %w", err)
		}
		b.BundleID = ir.RawBundleID(bundleID)
		out = append(out, b)
	}
	return out, rows.Err()
}

// RemoveBundles deletes bundles that a filler has replayed.
// Returns the number of rows removed.
func (s *Store) RemoveBundles(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM reverse_filler_queue WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("remove bundles: %w", err)
	}
	return res.RowsAffected()
}
