package reachability

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/store"
)

// countingGraph wraps a store and counts node reads.
type countingGraph struct {
	s     *store.Store
	reads atomic.Int64
}

func (g *countingGraph) Node(ctx context.Context, id ir.ChangesetID) (store.Node, error) {
	g.reads.Add(1)
	return g.s.Node(ctx, id)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func commit(msg string, parents ...ir.ChangesetID) *ir.Changeset {
	return &ir.Changeset{
		Parents:     parents,
		Author:      "alice",
		Message:     msg,
		FileChanges: map[string]ir.FileChange{msg: {Size: 1}},
	}
}

// buildGraph stores:
//
//	a - b - c - d
//	     \
//	      e - f
//	           \
//	 g ---------m (merge of f and g)
func buildGraph(t *testing.T, s *store.Store) map[string]ir.ChangesetID {
	t.Helper()
	ids := map[string]ir.ChangesetID{}
	add := func(label string, parents ...string) {
		var ps []ir.ChangesetID
		for _, p := range parents {
			ps = append(ps, ids[p])
		}
		cs := commit(label, ps...)
		require.NoError(t, s.SaveChangesets(context.Background(), []*ir.Changeset{cs}))
		ids[label] = cs.MustID()
	}
	add("a")
	add("b", "a")
	add("c", "b")
	add("d", "c")
	add("e", "b")
	add("f", "e")
	add("g")
	add("m", "f", "g")
	return ids
}

func TestIsAncestor(t *testing.T) {
	s := newTestStore(t)
	ids := buildGraph(t, s)
	o, err := New(s, 0)
	require.NoError(t, err)

	tests := []struct {
		ancestor, descendant string
		want                 bool
	}{
		{"a", "d", true},
		{"b", "m", true},
		{"g", "m", true},
		{"d", "d", true},
		{"c", "f", false},
		{"d", "a", false},
		{"e", "d", false},
		{"g", "d", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.ancestor, tt.descendant), func(t *testing.T) {
			got, err := o.IsAncestor(context.Background(), ids[tt.ancestor], ids[tt.descendant])
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsAncestor_UnknownChangeset(t *testing.T) {
	s := newTestStore(t)
	ids := buildGraph(t, s)
	o, err := New(s, 0)
	require.NoError(t, err)

	_, err = o.IsAncestor(context.Background(), commit("ghost").MustID(), ids["d"])
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestIsAncestor_CachesNodes(t *testing.T) {
	s := newTestStore(t)
	ids := buildGraph(t, s)
	g := &countingGraph{s: s}
	o, err := New(g, 0)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = o.IsAncestor(ctx, ids["a"], ids["m"])
	require.NoError(t, err)
	first := g.reads.Load()

	_, err = o.IsAncestor(ctx, ids["a"], ids["m"])
	require.NoError(t, err)
	assert.Equal(t, first, g.reads.Load(), "second query should be served from cache")
}

func TestIsAncestor_PrunesByGeneration(t *testing.T) {
	s := newTestStore(t)
	ids := buildGraph(t, s)
	g := &countingGraph{s: s}
	o, err := New(g, 0)
	require.NoError(t, err)

	// d has generation 4 and c generation 3: only d's parent is inspected.
	ok, err := o.IsAncestor(context.Background(), ids["c"], ids["d"])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.LessOrEqual(t, g.reads.Load(), int64(2))
}

func TestWithPending(t *testing.T) {
	s := newTestStore(t)
	ids := buildGraph(t, s)
	o, err := New(s, 0)
	require.NoError(t, err)

	p1 := commit("p1", ids["d"])
	p2 := commit("p2", p1.MustID())

	ctx := context.Background()
	v, err := o.WithPending(ctx, []*ir.Changeset{p2, p1})
	require.NoError(t, err)

	ok, err := v.IsAncestor(ctx, ids["b"], p2.MustID())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.IsAncestor(ctx, ids["f"], p2.MustID())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = o.IsAncestor(ctx, ids["b"], p2.MustID())
	assert.Error(t, err, "pending changesets must not leak into the oracle")
}

func TestWithPending_MissingParent(t *testing.T) {
	s := newTestStore(t)
	o, err := New(s, 0)
	require.NoError(t, err)

	orphan := commit("orphan", commit("ghost").MustID())
	_, err = o.WithPending(context.Background(), []*ir.Changeset{orphan})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestDifference(t *testing.T) {
	s := newTestStore(t)
	ids := buildGraph(t, s)
	o, err := New(s, 0)
	require.NoError(t, err)

	got, err := o.Difference(context.Background(), ids["d"], ids["f"])
	require.NoError(t, err)
	assert.Equal(t, []ir.ChangesetID{ids["d"], ids["c"]}, got)

	got, err = o.Difference(context.Background(), ids["m"], ids["d"])
	require.NoError(t, err)
	assert.ElementsMatch(t, []ir.ChangesetID{ids["m"], ids["f"], ids["g"], ids["e"]}, got)

	got, err = o.Difference(context.Background(), ids["b"], ids["d"])
	require.NoError(t, err)
	assert.Empty(t, got)
}
