package store

import (
	"context"
	"testing"

	"github.com/roach88/unbundle/internal/ir"
)

func TestAddMutationEntries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	entry := ir.MutationEntry{
		Successor:    "n2",
		Predecessors: []ir.NativeID{"n1"},
		Op:           "amend",
		User:         "alice",
		Timestamp:    1700000000,
		Extra:        map[string]string{"note": "<fix>"},
	}
	if err := s.AddMutationEntries(ctx, []ir.NativeID{"n2", "n3"}, []ir.MutationEntry{entry}); err != nil {
		t.Fatalf("AddMutationEntries() failed: %v", err)
	}

	got, found, err := s.MutationEntry(ctx, "n2")
	if err != nil || !found {
		t.Fatalf("MutationEntry() = %v, %v", found, err)
	}
	if got.Op != "amend" || got.Extra["note"] != "<fix>" {
		t.Errorf("MutationEntry() = %+v", got)
	}

	succ, err := s.Successors(ctx, "n1")
	if err != nil || len(succ) != 1 || succ[0] != "n2" {
		t.Errorf("Successors() = %v, %v", succ, err)
	}

	for _, id := range []ir.NativeID{"n2", "n3"} {
		has, err := s.HasMutationData(ctx, id)
		if err != nil || !has {
			t.Errorf("HasMutationData(%s) = %v, %v", id, has, err)
		}
	}
	if has, _ := s.HasMutationData(ctx, "n4"); has {
		t.Error("HasMutationData(n4) = true")
	}
}

func TestAddMutationEntries_FirstWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := ir.MutationEntry{Successor: "n2", Predecessors: []ir.NativeID{"n1"}, Op: "amend"}
	second := ir.MutationEntry{Successor: "n2", Predecessors: []ir.NativeID{"n0"}, Op: "rebase"}

	if err := s.AddMutationEntries(ctx, nil, []ir.MutationEntry{first}); err != nil {
		t.Fatalf("first AddMutationEntries() failed: %v", err)
	}
	if err := s.AddMutationEntries(ctx, nil, []ir.MutationEntry{second}); err != nil {
		t.Fatalf("second AddMutationEntries() failed: %v", err)
	}

	got, _, _ := s.MutationEntry(ctx, "n2")
	if got.Op != "amend" {
		t.Errorf("Op = %q, want first write to win", got.Op)
	}
	if succ, _ := s.Successors(ctx, "n0"); len(succ) != 0 {
		t.Errorf("Successors(n0) = %v, want none", succ)
	}
}

func TestAddMutationEntries_RejectsMissingSuccessor(t *testing.T) {
	s := createTestStore(t)

	err := s.AddMutationEntries(context.Background(), []ir.NativeID{"n1"}, []ir.MutationEntry{{Op: "amend"}})
	if err == nil {
		t.Fatal("AddMutationEntries() accepted an entry without successor")
	}
	if has, _ := s.HasMutationData(context.Background(), "n1"); has {
		t.Error("partial mutation write was committed")
	}
}
