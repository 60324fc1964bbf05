package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/unbundle/internal/ir"
)

// marshalChangeset converts a changeset to its canonical JSON TEXT.
// The stored text is exactly what the id is computed from, so a row can be
// re-verified against its primary key on read.
func marshalChangeset(cs *ir.Changeset) (string, error) {
	data, err := cs.Canonical()
	if err != nil {
		return "", fmt.Errorf("marshal changeset: %w", err)
	}
	return string(data), nil
}

// unmarshalChangeset parses canonical JSON TEXT and checks that it hashes
// to the expected id.
func unmarshalChangeset(id ir.ChangesetID, data string) (*ir.Changeset, error) {
	var cs ir.Changeset
	if err := json.Unmarshal([]byte(data), &cs); err != nil {
		return nil, fmt.Errorf("unmarshal changeset %s: %w", id.Short(), err)
	}
	if len(cs.Extras) == 0 {
		cs.Extras = nil
	}
	got, err := cs.ID()
	if err != nil {
		return nil, fmt.Errorf("unmarshal changeset %s: %w", id.Short(), err)
	}
	if got != id {
		return nil, fmt.Errorf("unmarshal changeset %s: content hashes to %s", id.Short(), got.Short())
	}
	return &cs, nil
}

// marshalMutationEntry converts a mutation entry to JSON TEXT.
// Uses json.Encoder with HTML escaping disabled so stored rows match what
// clients sent byte for byte.
func marshalMutationEntry(entry ir.MutationEntry) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entry); err != nil {
		return "", fmt.Errorf("marshal mutation entry: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalMutationEntry parses JSON TEXT to a mutation entry.
func unmarshalMutationEntry(data string) (ir.MutationEntry, error) {
	var entry ir.MutationEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return ir.MutationEntry{}, fmt.Errorf("unmarshal mutation entry: %w", err)
	}
	return entry, nil
}

// nullableID maps the zero id to SQL NULL.
func nullableID(id ir.ChangesetID) any {
	if id.IsZero() {
		return nil
	}
	return string(id)
}
