package auth

import "context"

type contextKey string

const pairedDeviceKey contextKey = "pairedDevice"

// User is the paired controller device a request acts on behalf of.
type User struct {
	Sub        string
	DeviceName string
	Type       TokenType
}

// WithUser stores the paired device identity in the context.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, pairedDeviceKey, user)
}

// UserFromContext returns the paired device identity, if present.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	value := ctx.Value(pairedDeviceKey)
	if value == nil {
		return User{}, false
	}
	user, ok := value.(User)
	return user, ok
}
