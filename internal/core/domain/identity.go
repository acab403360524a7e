package domain

import (
	"strings"
	"time"
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID    string
	SessionID string
	Roles     []string
	// IssuedAt is the token's iat; zero when the token carried none.
	IssuedAt      time.Time
	Authenticated bool
}

// HasSession reports whether the identity carries a session id worth checking.
func (i Identity) HasSession() bool {
	return i.Authenticated && strings.TrimSpace(i.SessionID) != ""
}

// HasRole reports whether the identity holds any of the supplied roles (case-insensitive).
func (i Identity) HasRole(roles ...string) bool {
	for _, held := range i.Roles {
		for _, wanted := range roles {
			if strings.EqualFold(strings.TrimSpace(held), strings.TrimSpace(wanted)) {
				return true
			}
		}
	}
	return false
}

// IssuedAfter reports whether the token was issued strictly after t.
// Tokens without an issue time are never considered newer.
func (i Identity) IssuedAfter(t time.Time) bool {
	return !i.IssuedAt.IsZero() && t.Before(i.IssuedAt)
}

const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
)
