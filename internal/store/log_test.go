package store

import (
	"context"
	"testing"

	"github.com/roach88/unbundle/internal/ir"
)

func TestReadBookmarkLog_TailsInOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ids := saveChain(t, s, "", 3)

	createBookmark(t, s, "main", ids[0])
	for i := 1; i < 3; i++ {
		txn := s.NewTransaction()
		txn.Update("main", ids[i-1], ids[i], ir.BookmarkKindPublic, ir.ReasonPush)
		if ok, err := txn.Commit(ctx); err != nil || !ok {
			t.Fatalf("Commit() = %v, %v", ok, err)
		}
	}

	entries, err := s.ReadBookmarkLog(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ReadBookmarkLog() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ReadBookmarkLog() returned %d entries, want 3", len(entries))
	}
	if !entries[0].From.IsZero() || entries[0].To != ids[0] {
		t.Errorf("creation entry = %+v", entries[0])
	}
	for i := 1; i < 3; i++ {
		if entries[i].From != ids[i-1] || entries[i].To != ids[i] {
			t.Errorf("entry %d = %+v", i, entries[i])
		}
	}

	tail, err := s.ReadBookmarkLog(ctx, entries[0].ID, 1)
	if err != nil {
		t.Fatalf("ReadBookmarkLog(after) failed: %v", err)
	}
	if len(tail) != 1 || tail[0].ID != entries[1].ID {
		t.Errorf("ReadBookmarkLog(after, 1) = %+v", tail)
	}
}

func TestBookmarkHistory_DeletionHasNoTarget(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ids := saveChain(t, s, "", 1)
	createBookmark(t, s, "doomed", ids[0])

	txn := s.NewTransaction()
	txn.Delete("doomed", ids[0], ir.BookmarkKindPublic, ir.ReasonManualMove)
	if ok, err := txn.Commit(ctx); err != nil || !ok {
		t.Fatalf("Commit() = %v, %v", ok, err)
	}

	history, err := s.BookmarkHistory(ctx, "doomed", 0)
	if err != nil {
		t.Fatalf("BookmarkHistory() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("BookmarkHistory() returned %d entries, want 2", len(history))
	}
	if !history[0].To.IsZero() || history[0].Reason != ir.ReasonManualMove {
		t.Errorf("newest entry = %+v, want deletion", history[0])
	}
}
