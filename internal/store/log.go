package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/unbundle/internal/ir"
)

// LogEntry is one row of the bookmark update log.
// From is zero for a creation, To is zero for a deletion.
type LogEntry struct {
	ID         int64                   `json:"id"`
	Name       ir.BookmarkName         `json:"name"`
	From       ir.ChangesetID          `json:"from,omitempty"`
	To         ir.ChangesetID          `json:"to,omitempty"`
	Reason     ir.BookmarkUpdateReason `json:"reason"`
	ReplayData []byte                  `json:"replay_data,omitempty"`
	CreatedAt  int64                   `json:"created_at"`
}

// ReadBookmarkLog returns log entries with id > afterID in id order.
// A non-positive limit returns every remaining entry. Replicas tail the log
// by passing the id of the last entry they applied.
func (s *Store) ReadBookmarkLog(ctx context.Context, afterID int64, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, from_id, to_id, reason, replay_data, created_at
		FROM bookmark_update_log
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("read bookmark log: %w", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

// BookmarkHistory returns the most recent log entries for one bookmark,
// newest first.
func (s *Store) BookmarkHistory(ctx context.Context, name ir.BookmarkName, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, from_id, to_id, reason, replay_data, created_at
		FROM bookmark_update_log
		WHERE name = ?
		ORDER BY id DESC
		LIMIT ?
	`, string(name), limit)
	if err != nil {
		return nil, fmt.Errorf("bookmark history %s: %w", name, err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

// LastLogID returns the id of the newest log entry, or 0 if the log is empty.
func (s *Store) LastLogID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM bookmark_update_log`).Scan(&id); err != nil {
		return 0, fmt.Errorf("last log id: %w", err)
	}
	return id.Int64, nil
}

func scanLogEntries(rows *sql.Rows) ([]LogEntry, error) {
	var out []LogEntry
	for rows.Next() {
		var (
			e        LogEntry
			name     string
			from, to sql.NullString
			reason   string
		)
		if err := rows.Scan(&e.ID, &name, &from, &to, &reason, &e.ReplayData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Name = ir.BookmarkName(name)
		e.From = ir.ChangesetID(from.String)
		e.To = ir.ChangesetID(to.String)
		e.Reason = ir.BookmarkUpdateReason(reason)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan log entries: %w", err)
	}
	return out, nil
}
