package authgate

import "context"

type principalContextKey struct{}

// WithPrincipal binds the authenticated principal to ctx. The middleware does
// this after a successful pipeline decision; handlers read it back with
// [PrincipalFromContext].
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal bound to ctx, or nil for
// anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
