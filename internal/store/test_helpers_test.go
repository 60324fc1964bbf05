package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/unbundle/internal/ir"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestStore creates a new store in a temp dir with a fixed clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testChangeset builds a changeset touching one path.
func testChangeset(msg string, path string, parents ...ir.ChangesetID) *ir.Changeset {
	return &ir.Changeset{
		Parents:     parents,
		Author:      "alice",
		AuthorDate:  1700000000,
		Message:     msg,
		FileChanges: map[string]ir.FileChange{path: {ContentID: ir.ContentHash([]byte(msg)), Size: int64(len(msg))}},
	}
}

// saveChain stores a linear chain of n changesets on top of parent and
// returns their ids, oldest first.
func saveChain(t *testing.T, s *Store, parent ir.ChangesetID, n int) []ir.ChangesetID {
	t.Helper()
	var (
		batch []*ir.Changeset
		ids   []ir.ChangesetID
	)
	for i := 0; i < n; i++ {
		var parents []ir.ChangesetID
		if !parent.IsZero() {
			parents = []ir.ChangesetID{parent}
		}
		cs := testChangeset("chain "+string(rune('a'+i))+" on "+parent.Short(), "file", parents...)
		batch = append(batch, cs)
		parent = cs.MustID()
		ids = append(ids, parent)
	}
	if err := s.SaveChangesets(context.Background(), batch); err != nil {
		t.Fatalf("SaveChangesets() failed: %v", err)
	}
	return ids
}

// createBookmark creates a public bookmark or fails the test.
func createBookmark(t *testing.T, s *Store, name string, target ir.ChangesetID) {
	t.Helper()
	txn := s.NewTransaction()
	txn.Create(ir.BookmarkName(name), target, ir.BookmarkKindPublic, ir.ReasonPush)
	ok, err := txn.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if !ok {
		t.Fatalf("Commit() lost race creating %s", name)
	}
}
