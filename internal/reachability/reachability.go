// Package reachability answers ancestry questions over the commit graph.
//
// Every changeset carries a generation number (1 + max parent generation),
// so a walk from a descendant can stop as soon as it reaches generations
// below the candidate ancestor's.
package reachability

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/store"
)

// DefaultCacheSize bounds the node cache of an Oracle.
const DefaultCacheSize = 100_000

// Graph is the read side of the commit graph. *store.Store implements it.
type Graph interface {
	Node(ctx context.Context, id ir.ChangesetID) (store.Node, error)
}

// Ancestry is implemented by Oracle and by the views returned from
// WithPending.
type Ancestry interface {
	IsAncestor(ctx context.Context, ancestor, descendant ir.ChangesetID) (bool, error)
}

type node struct {
	generation int64
	parents    []ir.ChangesetID
}

// Oracle answers ancestry queries against stored changesets. Generation and
// parents never change once stored, so nodes are cached indefinitely (LRU
// bounded). Safe for concurrent use.
type Oracle struct {
	graph Graph
	nodes *lru.Cache[ir.ChangesetID, node]
}

// New creates an Oracle over graph with a node cache of cacheSize entries.
func New(graph Graph, cacheSize int) (*Oracle, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[ir.ChangesetID, node](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("reachability: %w", err)
	}
	return &Oracle{graph: graph, nodes: cache}, nil
}

func (o *Oracle) lookup(ctx context.Context, id ir.ChangesetID) (node, error) {
	if n, ok := o.nodes.Get(id); ok {
		return n, nil
	}
	sn, err := o.graph.Node(ctx, id)
	if err != nil {
		return node{}, err
	}
	n := node{generation: sn.Generation, parents: sn.Parents}
	o.nodes.Add(id, n)
	return n, nil
}

// IsAncestor reports whether ancestor is reachable from descendant by
// following parent edges. A changeset is its own ancestor.
func (o *Oracle) IsAncestor(ctx context.Context, ancestor, descendant ir.ChangesetID) (bool, error) {
	return isAncestor(ctx, o.lookup, ancestor, descendant)
}

// Difference returns the changesets reachable from head that are not
// reachable from any of bases, nearest to head first.
func (o *Oracle) Difference(ctx context.Context, head ir.ChangesetID, bases ...ir.ChangesetID) ([]ir.ChangesetID, error) {
	return difference(ctx, o.lookup, head, bases)
}

// WithPending returns a view that also knows about changesets that are not
// stored yet, such as the commits of an in-flight push. Their parents must
// be stored or part of the same batch.
func (o *Oracle) WithPending(ctx context.Context, changesets []*ir.Changeset) (*View, error) {
	sorted, err := ir.SortTopologically(changesets)
	if err != nil {
		return nil, fmt.Errorf("reachability: %w", err)
	}

	v := &View{oracle: o, pending: make(map[ir.ChangesetID]node, len(sorted))}
	for _, cs := range sorted {
		id, err := cs.ID()
		if err != nil {
			return nil, fmt.Errorf("reachability: %w", err)
		}
		var gen int64
		for _, p := range cs.Parents {
			pn, err := v.lookup(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("reachability: parent %s of %s: %w", p.Short(), id.Short(), err)
			}
			gen = max(gen, pn.generation)
		}
		v.pending[id] = node{generation: gen + 1, parents: cs.Parents}
	}
	return v, nil
}

// View is an Oracle overlaid with pending changesets.
type View struct {
	oracle  *Oracle
	pending map[ir.ChangesetID]node
}

func (v *View) lookup(ctx context.Context, id ir.ChangesetID) (node, error) {
	if n, ok := v.pending[id]; ok {
		return n, nil
	}
	return v.oracle.lookup(ctx, id)
}

// IsAncestor is Oracle.IsAncestor including pending changesets.
func (v *View) IsAncestor(ctx context.Context, ancestor, descendant ir.ChangesetID) (bool, error) {
	return isAncestor(ctx, v.lookup, ancestor, descendant)
}

// Difference is Oracle.Difference including pending changesets.
func (v *View) Difference(ctx context.Context, head ir.ChangesetID, bases ...ir.ChangesetID) ([]ir.ChangesetID, error) {
	return difference(ctx, v.lookup, head, bases)
}

type lookupFunc func(context.Context, ir.ChangesetID) (node, error)

func isAncestor(ctx context.Context, lookup lookupFunc, ancestor, descendant ir.ChangesetID) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}

	an, err := lookup(ctx, ancestor)
	if err != nil {
		return false, fmt.Errorf("is ancestor: %w", err)
	}
	dn, err := lookup(ctx, descendant)
	if err != nil {
		return false, fmt.Errorf("is ancestor: %w", err)
	}
	if dn.generation <= an.generation {
		return false, nil
	}

	visited := map[ir.ChangesetID]bool{descendant: true}
	queue := []ir.ChangesetID{descendant}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		id := queue[0]
		queue = queue[1:]

		n, err := lookup(ctx, id)
		if err != nil {
			return false, fmt.Errorf("is ancestor: %w", err)
		}
		for _, p := range n.parents {
			if p == ancestor {
				return true, nil
			}
			if visited[p] {
				continue
			}
			visited[p] = true
			pn, err := lookup(ctx, p)
			if err != nil {
				return false, fmt.Errorf("is ancestor: %w", err)
			}
			if pn.generation > an.generation {
				queue = append(queue, p)
			}
		}
	}
	return false, nil
}

func difference(ctx context.Context, lookup lookupFunc, head ir.ChangesetID, bases []ir.ChangesetID) ([]ir.ChangesetID, error) {
	reachableFromBase := func(id ir.ChangesetID) (bool, error) {
		for _, b := range bases {
			ok, err := isAncestor(ctx, lookup, id, b)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}

	var out []ir.ChangesetID
	visited := map[ir.ChangesetID]bool{}
	queue := []ir.ChangesetID{head}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		inBase, err := reachableFromBase(id)
		if err != nil {
			return nil, fmt.Errorf("difference: %w", err)
		}
		if inBase {
			continue
		}
		out = append(out, id)

		n, err := lookup(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("difference: %w", err)
		}
		queue = append(queue, n.parents...)
	}
	return out, nil
}
