package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/unbundle/internal/ir"
)

// Bookmark is a stored bookmark.
type Bookmark struct {
	Name   ir.BookmarkName `json:"name"`
	Target ir.ChangesetID  `json:"target"`
	Kind   ir.BookmarkKind `json:"kind"`
}

// Node is the graph view of a changeset: enough to walk ancestry without
// decoding content.
type Node struct {
	ID         ir.ChangesetID
	Generation int64
	Parents    []ir.ChangesetID
	Public     bool
}

// GetBookmark returns the bookmark with the given name.
// The bool is false if no such bookmark exists.
func (s *Store) GetBookmark(ctx context.Context, name ir.BookmarkName) (Bookmark, bool, error) {
	var target, kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT changeset_id, kind FROM bookmarks WHERE name = ?
	`, string(name)).Scan(&target, &kind)
	if err == sql.ErrNoRows {
		return Bookmark{}, false, nil
	}
	if err != nil {
		return Bookmark{}, false, fmt.Errorf("get bookmark %s: %w", name, err)
	}
	return Bookmark{Name: name, Target: ir.ChangesetID(target), Kind: ir.BookmarkKind(kind)}, true, nil
}

// ListBookmarks returns bookmarks ordered by name. An empty kind matches
// both kinds; prefix filters by name prefix.
func (s *Store) ListBookmarks(ctx context.Context, kind ir.BookmarkKind, prefix string) ([]Bookmark, error) {
	query := `SELECT name, changeset_id, kind FROM bookmarks WHERE 1 = 1`
	var args []any
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY name ASC COLLATE BINARY`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	all, err := scanBookmarks(rows)
	if err != nil || prefix == "" {
		return all, err
	}
	var out []Bookmark
	for _, b := range all {
		if strings.HasPrefix(string(b.Name), prefix) {
			out = append(out, b)
		}
	}
	return out, nil
}

// BookmarksAt returns the bookmarks pointing at a changeset.
func (s *Store) BookmarksAt(ctx context.Context, id ir.ChangesetID) ([]Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, changeset_id, kind FROM bookmarks
		WHERE changeset_id = ?
		ORDER BY name ASC COLLATE BINARY
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("bookmarks at %s: %w", id.Short(), err)
	}
	defer rows.Close()
	return scanBookmarks(rows)
}

func scanBookmarks(rows *sql.Rows) ([]Bookmark, error) {
	var out []Bookmark
	for rows.Next() {
		var name, target, kind string
		if err := rows.Scan(&name, &target, &kind); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out = append(out, Bookmark{
			Name:   ir.BookmarkName(name),
			Target: ir.ChangesetID(target),
			Kind:   ir.BookmarkKind(kind),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan bookmarks: %w", err)
	}
	return out, nil
}

// Changeset reads and verifies a stored changeset.
// Returns ErrNotFound if it does not exist.
func (s *Store) Changeset(ctx context.Context, id ir.ChangesetID) (*ir.Changeset, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM changesets WHERE id = ?`, string(id)).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("changeset %s: %w", id.Short(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("changeset %s: %w", id.Short(), err)
	}
	return unmarshalChangeset(id, content)
}

// KnownChangesets reports which of the given ids are stored.
func (s *Store) KnownChangesets(ctx context.Context, ids []ir.ChangesetID) (map[ir.ChangesetID]bool, error) {
	known := make(map[ir.ChangesetID]bool, len(ids))
	if len(ids) == 0 {
		return known, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM changesets WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("known changesets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("known changesets: %w", err)
		}
		known[ir.ChangesetID(id)] = true
	}
	return known, rows.Err()
}

// Node reads the graph view of a changeset.
// Returns ErrNotFound if it does not exist.
func (s *Store) Node(ctx context.Context, id ir.ChangesetID) (Node, error) {
	node := Node{ID: id}
	var public int
	err := s.db.QueryRowContext(ctx, `
		SELECT generation, public FROM changesets WHERE id = ?
	`, string(id)).Scan(&node.Generation, &public)
	if err == sql.ErrNoRows {
		return Node{}, fmt.Errorf("changeset %s: %w", id.Short(), ErrNotFound)
	}
	if err != nil {
		return Node{}, fmt.Errorf("node %s: %w", id.Short(), err)
	}
	node.Public = public == 1

	rows, err := s.db.QueryContext(ctx, `
		SELECT parent FROM changeset_parents WHERE child = ? ORDER BY seq ASC
	`, string(id))
	if err != nil {
		return Node{}, fmt.Errorf("node %s: parents: %w", id.Short(), err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return Node{}, fmt.Errorf("node %s: parents: %w", id.Short(), err)
		}
		node.Parents = append(node.Parents, ir.ChangesetID(p))
	}
	if err := rows.Err(); err != nil {
		return Node{}, fmt.Errorf("node %s: parents: %w", id.Short(), err)
	}
	return node, nil
}

// Generation returns the generation number of a stored changeset.
func (s *Store) Generation(ctx context.Context, id ir.ChangesetID) (int64, error) {
	gen, err := readGeneration(ctx, s.db, id)
	if err != nil {
		return 0, fmt.Errorf("generation %s: %w", id.Short(), err)
	}
	return gen, nil
}

// IsPublic reports whether a stored changeset is public.
func (s *Store) IsPublic(ctx context.Context, id ir.ChangesetID) (bool, error) {
	node, err := s.Node(ctx, id)
	if err != nil {
		return false, err
	}
	return node.Public, nil
}

// Globalrev returns the globalrev assigned to a changeset, if any.
func (s *Store) Globalrev(ctx context.Context, id ir.ChangesetID) (int64, bool, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `
		SELECT globalrev FROM globalrevs WHERE changeset_id = ?
	`, string(id)).Scan(&rev)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("globalrev %s: %w", id.Short(), err)
	}
	return rev, true, nil
}

// MaxGlobalrev returns the highest assigned globalrev, or 0 if none.
func (s *Store) MaxGlobalrev(ctx context.Context) (int64, error) {
	var rev sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(globalrev) FROM globalrevs`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("max globalrev: %w", err)
	}
	return rev.Int64, nil
}

// Parents returns the parents of a stored changeset in order.
// Returns ErrNotFound if it does not exist.
func (s *Store) Parents(ctx context.Context, id ir.ChangesetID) ([]ir.ChangesetID, error) {
	node, err := s.Node(ctx, id)
	if err != nil {
		return nil, err
	}
	return node.Parents, nil
}
