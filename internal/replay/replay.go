// Package replay defines the metadata attached to a bookmark transaction so
// that downstream mirrors can replay the exact push.
//
// The metadata is stored as opaque bytes in the bookmark update log. It is
// encoded as CBOR with Core Deterministic Encoding (RFC 8949 §4.2), so the
// same push always produces identical bytes.
package replay

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/unbundle/internal/ir"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("replay: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("replay: CBOR decoder initialization failed: " + err.Error())
	}
}

// Data identifies the raw bundle a push came from and the client-side
// timestamps of its commits.
type Data struct {
	RawBundleID ir.RawBundleID           `cbor:"1,keyasint"`
	Timestamps  map[ir.ChangesetID]int64 `cbor:"2,keyasint,omitempty"`
}

// IsZero reports whether there is nothing to replay.
func (d *Data) IsZero() bool {
	return d == nil || (d.RawBundleID == "" && len(d.Timestamps) == 0)
}

// Encode returns the deterministic CBOR encoding of d. A nil or empty d
// encodes to nil so the log column stays NULL.
func Encode(d *Data) ([]byte, error) {
	if d.IsZero() {
		return nil, nil
	}
	data, err := encMode.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode replay data: %w", err)
	}
	return data, nil
}

// Decode parses replay data written by Encode. Nil input decodes to nil.
func Decode(data []byte) (*Data, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var d Data
	if err := decMode.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode replay data: %w", err)
	}
	return &d, nil
}

// WithTimestamps returns a copy of d that also records the author dates of
// the given changesets. Used when pushrebase rewrites commits so mirrors can
// restore the original timestamps.
func (d *Data) WithTimestamps(changesets []*ir.Changeset) *Data {
	out := &Data{}
	if d != nil {
		out.RawBundleID = d.RawBundleID
		if len(d.Timestamps) > 0 {
			out.Timestamps = make(map[ir.ChangesetID]int64, len(d.Timestamps)+len(changesets))
			for k, v := range d.Timestamps {
				out.Timestamps[k] = v
			}
		}
	}
	for _, cs := range changesets {
		if out.Timestamps == nil {
			out.Timestamps = make(map[ir.ChangesetID]int64, len(changesets))
		}
		out.Timestamps[cs.MustID()] = cs.AuthorDate
	}
	return out
}
