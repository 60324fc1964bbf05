package ir

import "fmt"

// SortTopologically orders changesets so every parent that is part of the
// set precedes its children. Parents outside the set are ignored. Apart from
// that constraint the input order is preserved, and duplicate ids keep only
// their first occurrence.
func SortTopologically(changesets []*Changeset) ([]*Changeset, error) {
	ids := make([]ChangesetID, 0, len(changesets))
	byID := make(map[ChangesetID]*Changeset, len(changesets))
	for _, cs := range changesets {
		id, err := cs.ID()
		if err != nil {
			return nil, err
		}
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = cs
		ids = append(ids, id)
	}

	indegree := make(map[ChangesetID]int, len(ids))
	children := make(map[ChangesetID][]ChangesetID, len(ids))
	for _, id := range ids {
		for _, p := range byID[id].Parents {
			if _, ok := byID[p]; ok {
				indegree[id]++
				children[p] = append(children[p], id)
			}
		}
	}

	queue := make([]ChangesetID, 0, len(ids))
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	out := make([]*Changeset, 0, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, byID[id])
		for _, c := range children[id] {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(out) != len(ids) {
		return nil, fmt.Errorf("changesets form a cycle")
	}
	return out, nil
}

// Roots returns the changesets none of whose parents are in the set, in
// input order.
func Roots(changesets []*Changeset) []*Changeset {
	in := idSet(changesets)
	var roots []*Changeset
	for _, cs := range changesets {
		isRoot := true
		for _, p := range cs.Parents {
			if in[p] {
				isRoot = false
				break
			}
		}
		if isRoot {
			roots = append(roots, cs)
		}
	}
	return roots
}

// Heads returns the changesets that are not a parent of any other changeset
// in the set, in input order.
func Heads(changesets []*Changeset) []*Changeset {
	hasChild := make(map[ChangesetID]bool, len(changesets))
	for _, cs := range changesets {
		for _, p := range cs.Parents {
			hasChild[p] = true
		}
	}
	var heads []*Changeset
	for _, cs := range changesets {
		if !hasChild[cs.MustID()] {
			heads = append(heads, cs)
		}
	}
	return heads
}

func idSet(changesets []*Changeset) map[ChangesetID]bool {
	set := make(map[ChangesetID]bool, len(changesets))
	for _, cs := range changesets {
		set[cs.MustID()] = true
	}
	return set
}
