package token

import "context"

type identityKey struct{}

func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Owns reports whether owner, as stored on a resource, names the same
// identity as the token's email claim. Both being absent counts as a match.
func (id Identity) Owns(owner any) bool {
	claim := id["email"]
	switch claim.(type) {
	case nil, string, float64, bool:
		return claim == owner
	}
	return false
}
