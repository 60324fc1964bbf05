package testutil

import (
	"github.com/roach88/unbundle/internal/ir"
)

// DefaultAuthorDate is the author date of changesets built here.
const DefaultAuthorDate = 1700000000

// Changeset builds a changeset by alice touching each path with a small
// file. Different messages give different ids.
func Changeset(msg string, parents []ir.ChangesetID, paths ...string) *ir.Changeset {
	files := make(map[string]ir.FileChange, len(paths))
	for _, p := range paths {
		files[p] = ir.FileChange{Size: int64(len(p))}
	}
	return &ir.Changeset{
		Parents:     parents,
		Author:      "alice",
		AuthorDate:  DefaultAuthorDate,
		Message:     msg,
		FileChanges: files,
	}
}

// Stack builds a linear stack on top of base, one changeset per path.
// A zero base makes the first changeset a root.
func Stack(base ir.ChangesetID, paths ...string) []*ir.Changeset {
	var out []*ir.Changeset
	parent := base
	for _, p := range paths {
		var parents []ir.ChangesetID
		if !parent.IsZero() {
			parents = []ir.ChangesetID{parent}
		}
		cs := Changeset("add "+p, parents, p)
		out = append(out, cs)
		parent = cs.MustID()
	}
	return out
}

// IDs returns the ids of changesets, in order.
func IDs(changesets []*ir.Changeset) []ir.ChangesetID {
	ids := make([]ir.ChangesetID, len(changesets))
	for i, cs := range changesets {
		ids[i] = cs.MustID()
	}
	return ids
}
