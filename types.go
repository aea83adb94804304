package authgate

import (
	"context"
	"time"
)

// Role is the coarse account role carried by the account record. Authorities
// embedded in tokens are derived from it at issue time.
type Role string

const (
	// RoleUser is the default marketplace member role.
	RoleUser Role = "USER"
	// RoleAdmin bypasses email-verification gates and may reach admin routes.
	RoleAdmin Role = "ADMIN"
	// RoleBanned accounts are confined to the self-service route allow-list.
	RoleBanned Role = "BANNED"
)

// AccountRecord is the live account state the engine reads through
// [AccountStore]. Status flags are always taken from here, never from token
// claims, so bans and deletions take effect on the very next request.
type AccountRecord struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          Role
	EmailVerified bool
	DeletedAt     *time.Time
	LastLoginAt   time.Time
}

// AccountStore is the interface callers implement to integrate authgate with
// their user database. Email is the token subject, so GetByEmail is the hot
// lookup.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (AccountRecord, error)
	UpdateLastLogin(ctx context.Context, email string, at time.Time) error
	MarkDeleted(ctx context.Context, email string, at time.Time) error
}

// Principal is the authenticated identity bound to a request after the
// pipeline accepts it. Authorities come from the token; the status-derived
// fields come from the store.
type Principal struct {
	Email         string
	Role          Role
	Authorities   []string
	EmailVerified bool
	DeletedAt     *time.Time
}

// Deleted reports whether the account carries a deletion timestamp.
func (p *Principal) Deleted() bool {
	return p != nil && p.DeletedAt != nil
}

// TokenPair is the access+refresh pair minted by [Engine.Login].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthoritiesForRole derives the authorities embedded in tokens at issue
// time. Banned accounts get none.
func AuthoritiesForRole(role Role) []string {
	switch role {
	case RoleAdmin:
		return []string{"ROLE_ADMIN", "ROLE_USER"}
	case RoleUser:
		return []string{"ROLE_USER"}
	default:
		return nil
	}
}
