package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/unbundle/internal/ir"
)

func TestGetBookmark_Missing(t *testing.T) {
	s := createTestStore(t)

	_, found, err := s.GetBookmark(context.Background(), "main")
	if err != nil {
		t.Fatalf("GetBookmark() failed: %v", err)
	}
	if found {
		t.Error("GetBookmark() found a bookmark in an empty store")
	}
}

func TestListBookmarks_FiltersByKindAndPrefix(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ids := saveChain(t, s, "", 1)

	createBookmark(t, s, "release/1", ids[0])
	createBookmark(t, s, "main", ids[0])
	txn := s.NewTransaction()
	txn.Create("scratch/bob", ids[0], ir.BookmarkKindScratch, ir.ReasonPush)
	if ok, err := txn.Commit(ctx); err != nil || !ok {
		t.Fatalf("Commit() = %v, %v", ok, err)
	}

	all, err := s.ListBookmarks(ctx, "", "")
	if err != nil {
		t.Fatalf("ListBookmarks() failed: %v", err)
	}
	names := make([]string, len(all))
	for i, b := range all {
		names[i] = string(b.Name)
	}
	want := []string{"main", "release/1", "scratch/bob"}
	if len(names) != len(want) {
		t.Fatalf("ListBookmarks() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ListBookmarks()[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	public, err := s.ListBookmarks(ctx, ir.BookmarkKindPublic, "")
	if err != nil || len(public) != 2 {
		t.Errorf("ListBookmarks(public) = %v, %v", public, err)
	}

	release, err := s.ListBookmarks(ctx, "", "release/")
	if err != nil || len(release) != 1 || release[0].Name != "release/1" {
		t.Errorf("ListBookmarks(prefix) = %v, %v", release, err)
	}

	at, err := s.BookmarksAt(ctx, ids[0])
	if err != nil || len(at) != 3 {
		t.Errorf("BookmarksAt() = %v, %v", at, err)
	}
}

func TestChangeset_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cs := &ir.Changeset{
		Author:     "alice",
		AuthorDate: 1 << 60,
		Message:    "big <date> & \"quotes\"",
		Extras:     map[string]string{"global_rev": "1000"},
		FileChanges: map[string]ir.FileChange{
			"bin/run":    {ContentID: "abc", Size: 10, Executable: true},
			"old/readme": {Deleted: true},
		},
	}
	if err := s.SaveChangesets(ctx, []*ir.Changeset{cs}); err != nil {
		t.Fatalf("SaveChangesets() failed: %v", err)
	}

	got, err := s.Changeset(ctx, cs.MustID())
	if err != nil {
		t.Fatalf("Changeset() failed: %v", err)
	}
	if got.MustID() != cs.MustID() {
		t.Errorf("round-tripped id = %s, want %s", got.MustID().Short(), cs.MustID().Short())
	}
	if got.AuthorDate != 1<<60 {
		t.Errorf("AuthorDate = %d, lost precision", got.AuthorDate)
	}
	if !got.FileChanges["bin/run"].Executable {
		t.Error("Executable flag lost")
	}
}

func TestChangeset_Missing(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Changeset(context.Background(), testChangeset("x", "f").MustID())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Changeset() error = %v, want ErrNotFound", err)
	}
}

func TestChangeset_DetectsCorruption(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ids := saveChain(t, s, "", 1)

	if _, err := s.db.Exec(`UPDATE changesets SET content = replace(content, 'alice', 'mallory')`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := s.Changeset(ctx, ids[0]); err == nil {
		t.Error("Changeset() accepted content that does not match its id")
	}
}

func TestNode_Root(t *testing.T) {
	s := createTestStore(t)
	ids := saveChain(t, s, "", 1)

	node, err := s.Node(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("Node() failed: %v", err)
	}
	if node.Generation != 1 || len(node.Parents) != 0 || node.Public {
		t.Errorf("Node() = %+v", node)
	}
}

func TestMaxGlobalrev_Empty(t *testing.T) {
	s := createTestStore(t)

	rev, err := s.MaxGlobalrev(context.Background())
	if err != nil || rev != 0 {
		t.Errorf("MaxGlobalrev() = %d, %v", rev, err)
	}
}

func TestParents_Chain(t *testing.T) {
	s := createTestStore(t)
	ids := saveChain(t, s, "", 2)

	parents, err := s.Parents(context.Background(), ids[1])
	if err != nil {
		t.Fatalf("Parents() failed: %v", err)
	}
	if len(parents) != 1 || parents[0] != ids[0] {
		t.Errorf("Parents() = %v, want [%s]", parents, ids[0].Short())
	}

	missing := testChangeset("missing", "file").MustID()
	if _, err := s.Parents(context.Background(), missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Parents(missing) error = %v, want ErrNotFound", err)
	}
}
