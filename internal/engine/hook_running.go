package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/unbundle/internal/bookmarks"
	"github.com/roach88/unbundle/internal/hooks"
	"github.com/roach88/unbundle/internal/ir"
)

// HookRejection is a hook veto in the form the calling protocol renders:
// the client-facing commit id next to the original rejection.
type HookRejection struct {
	HookName        string         `json:"hook_name"`
	ChangesetID     ir.ChangesetID `json:"changeset_id"`
	NativeID        ir.NativeID    `json:"native_id"`
	Description     string         `json:"description"`
	LongDescription string         `json:"long_description,omitempty"`
}

// HookRejectionRemapper maps the changeset a hook rejected to the id the
// client knows it by.
type HookRejectionRemapper interface {
	NativeID(ctx context.Context, id ir.ChangesetID) (ir.NativeID, error)
}

// IdentityRemapper reports changeset ids unchanged.
type IdentityRemapper struct{}

// NativeID implements HookRejectionRemapper.
func (IdentityRemapper) NativeID(_ context.Context, id ir.ChangesetID) (ir.NativeID, error) {
	return ir.NativeID(id), nil
}

// MapRemapper looks changesets up in a fixed table built by the resolver
// while it uploaded the bundle.
type MapRemapper map[ir.ChangesetID]ir.NativeID

// NativeID implements HookRejectionRemapper.
func (m MapRemapper) NativeID(_ context.Context, id ir.ChangesetID) (ir.NativeID, error) {
	native, ok := m[id]
	if !ok {
		return "", fmt.Errorf("no native id for rejected changeset %s", id.Short())
	}
	return native, nil
}

// mapHookRejections remaps every rejection concurrently, keeping order.
// A nil remapper is the identity.
func mapHookRejections(ctx context.Context, rejections []hooks.Rejection, remapper HookRejectionRemapper) ([]HookRejection, error) {
	if remapper == nil {
		remapper = IdentityRemapper{}
	}
	out := make([]HookRejection, len(rejections))
	g, ctx := errgroup.WithContext(ctx)
	for i, r := range rejections {
		g.Go(func() error {
			native, err := remapper.NativeID(ctx, r.ChangesetID)
			if err != nil {
				return err
			}
			out[i] = HookRejection{
				HookName:        r.HookName,
				ChangesetID:     r.ChangesetID,
				NativeID:        native,
				Description:     r.Description,
				LongDescription: r.LongDescription,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// hookError converts a bookmark movement's hook failure into a
// ResolverError carrying the remapped rejections.
func hookError(ctx context.Context, err error, remapper HookRejectionRemapper) error {
	rejections, mapErr := mapHookRejections(ctx, bookmarks.RejectionsOf(err), remapper)
	if mapErr != nil {
		return withContext(mapErr, "Failed to remap hook rejections")
	}
	return &ResolverError{Code: ErrCodeHookError, Rejections: rejections, Err: err}
}
