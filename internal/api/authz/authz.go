package authz

import (
	"context"
	"errors"

	"github.com/codr1/Kickabout/internal/db"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// AuthUser is the caller identity carried by a verified access token.
type AuthUser struct {
	ID   string
	Role db.Role
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the AuthUser stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored value has a different type.
func UserFromContext(ctx context.Context) *AuthUser {
	if ctx == nil {
		return nil
	}

	user, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok {
		return nil
	}

	return user
}

// IsAdmin reports whether user is a non-nil admin.
func IsAdmin(user *AuthUser) bool {
	return user != nil && user.Role == db.RoleAdmin
}

// RequireUser returns the caller or ErrUnauthenticated.
func RequireUser(ctx context.Context) (*AuthUser, error) {
	user := UserFromContext(ctx)
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// RequireAdmin returns the caller if they are an admin.
func RequireAdmin(ctx context.Context) (*AuthUser, error) {
	user, err := RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if !IsAdmin(user) {
		return nil, ErrForbidden
	}
	return user, nil
}

// RequireSelfOrAdmin allows a caller to act on their own account, and admins
// to act on anyone's.
func RequireSelfOrAdmin(ctx context.Context, userID string) (*AuthUser, error) {
	user, err := RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if user.ID != userID && !IsAdmin(user) {
		return nil, ErrForbidden
	}
	return user, nil
}
