package session

import "context"

type holderContextKey struct{}

// WithHolder stores the session holder in context.
func WithHolder(ctx context.Context, h *Holder) context.Context {
	return context.WithValue(ctx, holderContextKey{}, h)
}

// FromContext extracts the session holder from context.
func FromContext(ctx context.Context) *Holder {
	h, _ := ctx.Value(holderContextKey{}).(*Holder)
	return h
}
