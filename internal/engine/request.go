package engine

import (
	"context"

	"github.com/roach88/unbundle/internal/ir"
)

type clientInfoKey struct{}

// WithClientInfo attaches the pushing client's identity to ctx. It feeds
// bookmark permission checks and the commit audit log.
func WithClientInfo(ctx context.Context, info ir.ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientInfoFrom returns the client identity attached to ctx, or the zero
// value.
func ClientInfoFrom(ctx context.Context) ir.ClientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(ir.ClientInfo)
	return info
}
