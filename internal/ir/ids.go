package ir

import (
	"encoding/hex"
	"fmt"
)

// ChangesetIDLen is the length of a hex-encoded ChangesetID.
const ChangesetIDLen = 64

// ChangesetID identifies a changeset in the canonical commit graph.
// It is the hex-encoded keyed BLAKE3 digest of the changeset content.
//
// The zero value means "no changeset".
type ChangesetID string

// IsZero reports whether the id is absent.
func (id ChangesetID) IsZero() bool {
	return id == ""
}

// Short returns an abbreviated form for logs and error messages.
func (id ChangesetID) Short() string {
	if len(id) > 12 {
		return string(id[:12])
	}
	return string(id)
}

func (id ChangesetID) String() string {
	return string(id)
}

// ParseChangesetID validates a hex-encoded changeset id.
func ParseChangesetID(s string) (ChangesetID, error) {
	if len(s) != ChangesetIDLen {
		return "", fmt.Errorf("invalid changeset id %q: expected %d hex characters, got %d", s, ChangesetIDLen, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("invalid changeset id %q: %w", s, err)
	}
	return ChangesetID(s), nil
}

// NativeID is the client-facing (wire protocol) commit id of a changeset.
// The engine treats it as opaque; mapping to ChangesetID is done upstream.
type NativeID string

// RawBundleID identifies a raw uploaded bundle preserved in the blob store.
type RawBundleID string

// PartID identifies a part of the uploaded bundle (changegroup, bookmark
// push). Responses echo part ids so the protocol layer can reply per part.
type PartID uint32

// RepoID identifies a repository.
type RepoID int64
