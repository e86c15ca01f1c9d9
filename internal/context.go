package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextUserKey ctxKey = "sessionUser"

// SessionUser is the authenticated identity carried through request context.
// Permissions hold the effective permission set: either the snapshot embedded
// in the session token or a fresh resolution, depending on snapshot age.
type SessionUser struct {
	ID          int64
	Email       string
	Name        string
	Role        string
	Permissions []string
	IssuedAt    time.Time
}

func (u *SessionUser) HasPermission(permission string) bool {
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func (u *SessionUser) HasAnyPermission(permissions []string) bool {
	for _, p := range permissions {
		if u.HasPermission(p) {
			return true
		}
	}
	return false
}

func (u *SessionUser) IsAdmin() bool {
	return u.HasPermission("admin")
}

func UserFromContext(ctx context.Context) (*SessionUser, bool) {
	if ctx == nil {
		return nil, false
	}
	user, ok := ctx.Value(ContextUserKey).(*SessionUser)
	return user, ok && user != nil
}

func ContextWithUser(ctx context.Context, user *SessionUser) context.Context {
	return context.WithValue(ctx, ContextUserKey, user)
}
