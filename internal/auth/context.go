package auth

import "context"

type principalContextKey struct{}

// binding is the request-scoped security context slot. It holds at most one
// principal.
type binding struct {
	principal Principal
	bound     bool
}

// WithPrincipal binds principal to the request context for downstream consumers.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, binding{principal: principal, bound: true})
}

// PrincipalFromContext retrieves the principal bound to ctx, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	b, ok := ctx.Value(principalContextKey{}).(binding)
	if !ok || !b.bound {
		return Principal{}, false
	}
	return b.principal, true
}

// ClearPrincipal returns a context whose security slot is explicitly empty,
// shadowing any principal bound by an outer layer. Login flows start from it.
func ClearPrincipal(ctx context.Context) context.Context {
	return context.WithValue(ctx, principalContextKey{}, binding{})
}
