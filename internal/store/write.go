package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/unbundle/internal/ir"
)

// SaveChangesets persists changesets in their own transaction.
// Changesets may arrive in any order; every parent must either be in the
// batch or already stored. Re-saving a stored changeset is a no-op.
//
// Used when an operation uploads commits without moving a bookmark. When a
// bookmark moves, add the changesets to the bookmark Transaction instead so
// both become durable together.
func (s *Store) SaveChangesets(ctx context.Context, changesets []*ir.Changeset) error {
	if len(changesets) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save changesets: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertChangesets(ctx, tx, changesets); err != nil {
		return fmt.Errorf("save changesets: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save changesets: commit: %w", err)
	}
	return nil
}

// insertChangesets writes changesets and parent edges, computing generation
// numbers as 1 + max(parent generation). Roots have generation 1.
func insertChangesets(ctx context.Context, q queryer, changesets []*ir.Changeset) error {
	sorted, err := ir.SortTopologically(changesets)
	if err != nil {
		return err
	}

	generations := make(map[ir.ChangesetID]int64, len(sorted))
	for _, cs := range sorted {
		id, err := cs.ID()
		if err != nil {
			return err
		}

		var gen int64
		for _, p := range cs.Parents {
			pg, ok := generations[p]
			if !ok {
				pg, err = readGeneration(ctx, q, p)
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("changeset %s: parent %s: %w", id.Short(), p.Short(), ErrNotFound)
				}
				if err != nil {
					return err
				}
			}
			gen = max(gen, pg)
		}
		gen++
		generations[id] = gen

		content, err := marshalChangeset(cs)
		if err != nil {
			return err
		}

		res, err := q.ExecContext(ctx, `
			INSERT INTO changesets (id, generation, author, author_date, content)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, string(id), gen, cs.Author, cs.AuthorDate, content)
		if err != nil {
			return fmt.Errorf("insert changeset %s: %w", id.Short(), err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Already stored: parent edges are part of the content, so
			// they are already present too.
			continue
		}

		for seq, p := range cs.Parents {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO changeset_parents (child, seq, parent)
				VALUES (?, ?, ?)
			`, string(id), seq, string(p)); err != nil {
				return fmt.Errorf("insert parent of %s: %w", id.Short(), err)
			}
		}
	}
	return nil
}

// MarkPublic flips the given changesets and all of their draft ancestors to
// public. The walk stops at ancestors that are already public, so repeated
// calls cost only the newly published part of the graph.
func (s *Store) MarkPublic(ctx context.Context, heads ...ir.ChangesetID) error {
	if len(heads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark public: begin: %w", err)
	}
	defer tx.Rollback()

	for _, head := range heads {
		if _, err := readGeneration(ctx, tx, head); err != nil {
			return fmt.Errorf("mark public %s: %w", head.Short(), err)
		}
		if _, err := tx.ExecContext(ctx, `
			WITH RECURSIVE draft(id) AS (
				SELECT id FROM changesets WHERE id = ? AND public = 0
				UNION
				SELECT p.parent
				FROM changeset_parents p
				JOIN draft d ON p.child = d.id
				JOIN changesets c ON c.id = p.parent
				WHERE c.public = 0
			)
			UPDATE changesets SET public = 1 WHERE id IN (SELECT id FROM draft)
		`, string(head)); err != nil {
			return fmt.Errorf("mark public %s: %w", head.Short(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark public: commit: %w", err)
	}
	return nil
}

func readGeneration(ctx context.Context, q queryer, id ir.ChangesetID) (int64, error) {
	var gen int64
	err := q.QueryRowContext(ctx, `SELECT generation FROM changesets WHERE id = ?`, string(id)).Scan(&gen)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read generation %s: %w", id.Short(), err)
	}
	return gen, nil
}
