// Package account persists provisioned user accounts.
package account

import "context"

// Role is the local account role derived during provisioning.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Account is the persisted user entity. OAuthSub carries the identity
// service's external identifier and, together with the lower-cased email,
// is the dedup key.
type Account struct {
	Email           string
	Password        string
	Name            string
	ProfileImageURL string
	Role            Role
	OAuthSub        string
}

// Error Contract:
// All store methods follow this error pattern:
// - Lookups return sentinel.ErrNotFound (wrapped) when no record matches
// - Insert returns sentinel.ErrAlreadyExists (wrapped) when the uniqueness
//   guard on oauth_sub or email rejects the row
// - Infrastructure failures are returned wrapped with context

// Store is the account store contract. The in-process dedup lookups before
// Insert are best-effort; the store's own uniqueness guard is authoritative.
type Store interface {
	FindByOAuthSub(ctx context.Context, oauthSub string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Insert(ctx context.Context, acct Account) (*Account, error)
}
