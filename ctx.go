package accounts

import "context"

var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// WithContext sets the session user in the given context.
func WithContext(ctx context.Context, user *SessionUser) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// FromContext finds the session user from the context.
func FromContext(ctx context.Context) (*SessionUser, bool) {
	if ctx == nil {
		return nil, false
	}
	user, ok := ctx.Value(userCtxKey).(*SessionUser)
	return user, ok && user != nil
}
