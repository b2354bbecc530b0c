package tenant

import "context"

type membershipContextKey struct{}

// ContextWithMembership attaches the authorized membership to the context so
// downstream handlers can refine checks without a second lookup.
func ContextWithMembership(ctx context.Context, m Membership) context.Context {
	return context.WithValue(ctx, membershipContextKey{}, m)
}

// MembershipFromContext extracts the authorized membership from the context.
func MembershipFromContext(ctx context.Context) (Membership, bool) {
	if ctx == nil {
		return Membership{}, false
	}
	m, ok := ctx.Value(membershipContextKey{}).(Membership)
	return m, ok
}
