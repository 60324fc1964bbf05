package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/unbundle/internal/ir"
)

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
)

type bookmarkOp struct {
	kind     opKind
	name     ir.BookmarkName
	old      ir.ChangesetID
	target   ir.ChangesetID
	bookmark ir.BookmarkKind
	reason   ir.BookmarkUpdateReason
}

// Transaction batches bookmark moves, new changesets and globalrev
// assignments into one atomic compare-and-swap.
//
// A Transaction is single use and not safe for concurrent use.
type Transaction struct {
	s          *Store
	changesets []*ir.Changeset
	ops        []bookmarkOp
	replayData []byte
	globalrevs map[ir.ChangesetID]int64
	committed  bool
}

// NewTransaction starts an empty bookmark transaction.
func (s *Store) NewTransaction() *Transaction {
	return &Transaction{s: s}
}

// AddChangesets schedules changesets to be stored with the bookmark moves.
func (t *Transaction) AddChangesets(changesets ...*ir.Changeset) {
	t.changesets = append(t.changesets, changesets...)
}

// Create adds a bookmark that must not already exist.
func (t *Transaction) Create(name ir.BookmarkName, target ir.ChangesetID, kind ir.BookmarkKind, reason ir.BookmarkUpdateReason) {
	t.ops = append(t.ops, bookmarkOp{kind: opCreate, name: name, target: target, bookmark: kind, reason: reason})
}

// Update moves a bookmark that must currently point at old.
func (t *Transaction) Update(name ir.BookmarkName, old, target ir.ChangesetID, kind ir.BookmarkKind, reason ir.BookmarkUpdateReason) {
	t.ops = append(t.ops, bookmarkOp{kind: opUpdate, name: name, old: old, target: target, bookmark: kind, reason: reason})
}

// Delete removes a bookmark that must currently point at old.
func (t *Transaction) Delete(name ir.BookmarkName, old ir.ChangesetID, kind ir.BookmarkKind, reason ir.BookmarkUpdateReason) {
	t.ops = append(t.ops, bookmarkOp{kind: opDelete, name: name, old: old, bookmark: kind, reason: reason})
}

// SetReplayData attaches opaque replay data to every log entry the
// transaction writes.
func (t *Transaction) SetReplayData(data []byte) {
	t.replayData = data
}

// AddGlobalrevs assigns globalrevs to changesets. A globalrev that is
// already taken makes Commit report a lost race.
func (t *Transaction) AddGlobalrevs(revs map[ir.ChangesetID]int64) {
	if t.globalrevs == nil {
		t.globalrevs = make(map[ir.ChangesetID]int64, len(revs))
	}
	maps.Copy(t.globalrevs, revs)
}

// Commit applies the transaction atomically.
//
// Returns (true, nil) when every bookmark matched its expected old value and
// all writes landed, (false, nil) when any expectation failed (nothing is
// written), and a non-nil error for storage failures or invalid input.
//
// Once started, the SQLite transaction runs to completion even if ctx is
// cancelled; a half-applied bookmark move is never observable.
func (t *Transaction) Commit(ctx context.Context) (bool, error) {
	if t.committed {
		return false, fmt.Errorf("bookmark transaction: already committed")
	}
	t.committed = true

	if err := t.validate(); err != nil {
		return false, fmt.Errorf("bookmark transaction: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	tx, err := t.s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("bookmark transaction: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertChangesets(ctx, tx, t.changesets); err != nil {
		return false, fmt.Errorf("bookmark transaction: %w", err)
	}

	now := t.s.nowMillis()
	for _, op := range t.ops {
		ok, err := applyBookmarkOp(ctx, tx, op)
		if err != nil {
			return false, fmt.Errorf("bookmark transaction: %s: %w", op.name, err)
		}
		if !ok {
			return false, nil
		}
		// Scratch bookmarks are not replicated, so their moves are not logged.
		if op.bookmark != ir.BookmarkKindPublic {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bookmark_update_log (name, from_id, to_id, reason, replay_data, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, string(op.name), nullableID(op.old), nullableID(op.target), string(op.reason), t.replayData, now); err != nil {
			return false, fmt.Errorf("bookmark transaction: log %s: %w", op.name, err)
		}
	}

	ok, err := insertGlobalrevs(ctx, tx, t.globalrevs)
	if err != nil {
		return false, fmt.Errorf("bookmark transaction: %w", err)
	}
	if !ok {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("bookmark transaction: commit: %w", err)
	}
	return true, nil
}

func (t *Transaction) validate() error {
	seen := make(map[ir.BookmarkName]bool, len(t.ops))
	for _, op := range t.ops {
		if seen[op.name] {
			return fmt.Errorf("bookmark %s appears more than once", op.name)
		}
		seen[op.name] = true
		if op.kind != opCreate && op.old.IsZero() {
			return fmt.Errorf("bookmark %s: missing expected old target", op.name)
		}
		if op.kind != opDelete && op.target.IsZero() {
			return fmt.Errorf("bookmark %s: missing new target", op.name)
		}
		if _, err := ir.ParseBookmarkKind(string(op.bookmark)); err != nil {
			return fmt.Errorf("bookmark %s: %w", op.name, err)
		}
	}
	return nil
}

// applyBookmarkOp performs one conditional write. It reports false when the
// bookmark did not match the expected state.
func applyBookmarkOp(ctx context.Context, tx *sql.Tx, op bookmarkOp) (bool, error) {
	if op.kind != opDelete {
		if _, err := readGeneration(ctx, tx, op.target); err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, fmt.Errorf("target %s: %w", op.target.Short(), ErrNotFound)
			}
			return false, err
		}
	}

	var (
		res sql.Result
		err error
	)
	switch op.kind {
	case opCreate:
		res, err = tx.ExecContext(ctx, `
			INSERT INTO bookmarks (name, changeset_id, kind)
			VALUES (?, ?, ?)
			ON CONFLICT(name) DO NOTHING
		`, string(op.name), string(op.target), string(op.bookmark))
	case opUpdate:
		res, err = tx.ExecContext(ctx, `
			UPDATE bookmarks SET changeset_id = ?
			WHERE name = ? AND changeset_id = ? AND kind = ?
		`, string(op.target), string(op.name), string(op.old), string(op.bookmark))
	case opDelete:
		res, err = tx.ExecContext(ctx, `
			DELETE FROM bookmarks
			WHERE name = ? AND changeset_id = ? AND kind = ?
		`, string(op.name), string(op.old), string(op.bookmark))
	default:
		return false, fmt.Errorf("unknown bookmark op %d", op.kind)
	}
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func insertGlobalrevs(ctx context.Context, tx *sql.Tx, revs map[ir.ChangesetID]int64) (bool, error) {
	ids := slices.Sorted(maps.Keys(revs))
	for _, id := range ids {
		var taken int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM globalrevs WHERE globalrev = ? OR changeset_id = ?
		`, revs[id], string(id)).Scan(&taken)
		if err != nil {
			return false, fmt.Errorf("check globalrev %d: %w", revs[id], err)
		}
		if taken > 0 {
			return false, nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO globalrevs (changeset_id, globalrev) VALUES (?, ?)
		`, string(id), revs[id]); err != nil {
			return false, fmt.Errorf("insert globalrev %d: %w", revs[id], err)
		}
	}
	return true, nil
}
