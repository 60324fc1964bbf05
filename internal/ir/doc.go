// Package ir provides the core value types shared by every unbundle package.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal, so it stays the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Changeset identity is content-addressed: ChangesetID is the keyed
//     BLAKE3 hash of the changeset's canonical encoding (see hash.go)
//   - Canonical encoding sorts object keys by UTF-16 code units and NFC
//     normalizes every string, so identical commits hash identically no
//     matter how the client spelled them
//   - An empty ID means "absent" (None) everywhere; helpers such as
//     ChangesetID.IsZero make that explicit at call sites
//   - All JSON tags use snake_case
package ir
