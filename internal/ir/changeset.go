package ir

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// FileChange describes the new state of one path in a changeset.
// File bodies live in the blob store and are referenced by ContentID.
type FileChange struct {
	ContentID  string `json:"content_id,omitempty" yaml:"content_id,omitempty"`
	Size       int64  `json:"size" yaml:"size"`
	Executable bool   `json:"executable,omitempty" yaml:"executable,omitempty"`
	Deleted    bool   `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Changeset is a backend-neutral commit: parents, metadata and the set of
// paths it changes. Its identity is derived from this content (see ID), so a
// Changeset must not be mutated after its id has been handed out. Use Clone
// to derive a rewritten commit.
type Changeset struct {
	Parents     []ChangesetID         `json:"parents"`
	Author      string                `json:"author"`
	AuthorDate  int64                 `json:"author_date"`
	Message     string                `json:"message"`
	Extras      map[string]string     `json:"extras,omitempty"`
	FileChanges map[string]FileChange `json:"file_changes"`
}

// ID computes the content-addressed id of the changeset.
func (cs *Changeset) ID() (ChangesetID, error) {
	data, err := cs.canonical()
	if err != nil {
		return "", fmt.Errorf("changeset id: %w", err)
	}
	return ChangesetID(keyedHash(changesetDomainKey, data)), nil
}

// MustID is like ID but panics on error.
// Use only in tests or when the changeset is known to be valid.
func (cs *Changeset) MustID() ChangesetID {
	id, err := cs.ID()
	if err != nil {
		panic(err)
	}
	return id
}

// Canonical returns the canonical encoding the id is computed from.
// The store keeps this encoding so a changeset can be re-read verbatim.
func (cs *Changeset) Canonical() ([]byte, error) {
	return cs.canonical()
}

func (cs *Changeset) canonical() ([]byte, error) {
	parents := make([]string, len(cs.Parents))
	for i, p := range cs.Parents {
		if p.IsZero() {
			return nil, fmt.Errorf("parent %d is empty", i)
		}
		parents[i] = string(p)
	}

	extras := make(map[string]any, len(cs.Extras))
	for k, v := range cs.Extras {
		extras[k] = v
	}

	files := make(map[string]any, len(cs.FileChanges))
	for path, fc := range cs.FileChanges {
		if path == "" {
			return nil, fmt.Errorf("file change with empty path")
		}
		entry := map[string]any{
			"deleted":    fc.Deleted,
			"executable": fc.Executable,
			"size":       fc.Size,
		}
		if fc.ContentID != "" {
			entry["content_id"] = fc.ContentID
		}
		files[path] = entry
	}

	return MarshalCanonical(map[string]any{
		"author":       cs.Author,
		"author_date":  cs.AuthorDate,
		"extras":       extras,
		"file_changes": files,
		"message":      cs.Message,
		"parents":      parents,
	})
}

// IsMerge reports whether the changeset has more than one parent.
func (cs *Changeset) IsMerge() bool {
	return len(cs.Parents) > 1
}

// ChangedPaths returns the paths touched by the changeset in sorted order.
func (cs *Changeset) ChangedPaths() []string {
	return slices.Sorted(maps.Keys(cs.FileChanges))
}

// Clone returns a deep copy that can be rewritten (new parents, extras)
// without affecting the original.
func (cs *Changeset) Clone() *Changeset {
	out := &Changeset{
		Parents:    slices.Clone(cs.Parents),
		Author:     cs.Author,
		AuthorDate: cs.AuthorDate,
		Message:    cs.Message,
	}
	if cs.Extras != nil {
		out.Extras = maps.Clone(cs.Extras)
	}
	if cs.FileChanges != nil {
		out.FileChanges = maps.Clone(cs.FileChanges)
	}
	return out
}

// PathsConflict reports whether two paths overlap: they are equal, or one
// is a directory prefix of the other ("a/b" and "a/b/c.txt").
func PathsConflict(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	return strings.HasPrefix(b, a) && b[len(a)] == '/'
}
