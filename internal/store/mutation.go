package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/unbundle/internal/ir"
)

// AddMutationEntries records client-supplied mutation history.
//
// changesets lists every native id the client sent mutation data for, even
// those without an entry, so a later lookup can tell "no history" apart
// from "history never uploaded". Writing an entry for a successor that
// already has one is a no-op.
func (s *Store) AddMutationEntries(ctx context.Context, changesets []ir.NativeID, entries []ir.MutationEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add mutation entries: begin: %w", err)
	}
	defer tx.Rollback()

	for _, id := range changesets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mutation_changesets (changeset_id) VALUES (?)
			ON CONFLICT(changeset_id) DO NOTHING
		`, string(id)); err != nil {
			return fmt.Errorf("add mutation entries: changeset %s: %w", id, err)
		}
	}

	for _, entry := range entries {
		if entry.Successor == "" {
			return fmt.Errorf("add mutation entries: entry without successor")
		}
		data, err := marshalMutationEntry(entry)
		if err != nil {
			return fmt.Errorf("add mutation entries: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO mutation_entries (successor, entry) VALUES (?, ?)
			ON CONFLICT(successor) DO NOTHING
		`, string(entry.Successor), data)
		if err != nil {
			return fmt.Errorf("add mutation entries: %s: %w", entry.Successor, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		for seq, pred := range entry.Predecessors {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO mutation_predecessors (successor, seq, predecessor)
				VALUES (?, ?, ?)
			`, string(entry.Successor), seq, string(pred)); err != nil {
				return fmt.Errorf("add mutation entries: predecessor of %s: %w", entry.Successor, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add mutation entries: commit: %w", err)
	}
	return nil
}

// MutationEntry returns the entry recorded for a successor.
func (s *Store) MutationEntry(ctx context.Context, successor ir.NativeID) (ir.MutationEntry, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT entry FROM mutation_entries WHERE successor = ?
	`, string(successor)).Scan(&data)
	if err == sql.ErrNoRows {
		return ir.MutationEntry{}, false, nil
	}
	if err != nil {
		return ir.MutationEntry{}, false, fmt.Errorf("mutation entry %s: %w", successor, err)
	}
	entry, err := unmarshalMutationEntry(data)
	if err != nil {
		return ir.MutationEntry{}, false, err
	}
	return entry, true, nil
}

// Successors returns the commits recorded as rewrites of predecessor.
func (s *Store) Successors(ctx context.Context, predecessor ir.NativeID) ([]ir.NativeID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT successor FROM mutation_predecessors
		WHERE predecessor = ?
		ORDER BY successor ASC
	`, string(predecessor))
	if err != nil {
		return nil, fmt.Errorf("successors of %s: %w", predecessor, err)
	}
	defer rows.Close()

	var out []ir.NativeID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("successors of %s: %w", predecessor, err)
		}
		out = append(out, ir.NativeID(id))
	}
	return out, rows.Err()
}

// HasMutationData reports whether mutation data was uploaded for a commit.
func (s *Store) HasMutationData(ctx context.Context, id ir.NativeID) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mutation_changesets WHERE changeset_id = ?
	`, string(id)).Scan(&n); err != nil {
		return false, fmt.Errorf("has mutation data %s: %w", id, err)
	}
	return n > 0, nil
}
