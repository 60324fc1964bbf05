package ir

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain separation
// keeps identical bytes from colliding across unrelated id spaces.
type domainKey [32]byte

// Domain keys are fixed: changing one invalidates every stored id in that
// domain. The bytes are the ASCII domain name, zero-padded to 32 bytes.
var (
	changesetDomainKey = domainKey{
		'u', 'n', 'b', 'u', 'n', 'd', 'l', 'e', '.', 'c', 'h', 'a', 'n', 'g', 'e', 's',
		'e', 't', '.', 'v', '1', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	contentDomainKey = domainKey{
		'u', 'n', 'b', 'u', 'n', 'd', 'l', 'e', '.', 'c', 'o', 'n', 't', 'e', 'n', 't',
		'.', 'v', '1', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// keyedHash computes the hex-encoded BLAKE3 keyed hash of data.
func keyedHash(key domainKey, data []byte) string {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails on a key that is not 32 bytes.
		panic("ir: blake3 keyed hasher: " + err.Error())
	}
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash computes the content id stored in FileChange.ContentID for a
// file body. Changesets reference file bodies by content id only.
func ContentHash(body []byte) string {
	return keyedHash(contentDomainKey, body)
}
