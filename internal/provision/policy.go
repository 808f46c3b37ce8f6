// Package provision decides whether and how a resolved identity profile
// becomes a local account, and drives the per-event pipeline.
package provision

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"provisioner/internal/account"
	"provisioner/internal/identity"
)

// adminMarker is the case-insensitive substring that maps a role to admin.
const adminMarker = "ADMIN"

// SkipReason tags why an event was skipped, for logs and metrics.
type SkipReason string

const (
	SkipDisabled     SkipReason = "disabled"
	SkipMissingEmail SkipReason = "missing_email"
	SkipDuplicate    SkipReason = "duplicate"
)

// Decision is the outcome of the provisioning policy for one profile.
type Decision struct {
	Proceed         bool
	Reason          SkipReason
	Role            account.Role
	EmailNormalized string
	// GeneratedPassword fills the store's mandatory credential column. The
	// user authenticates via the identity service, never with this value.
	GeneratedPassword string
}

// Decide applies the provisioning policy. It is pure apart from the random
// password; tests treat that field as opaque.
func Decide(profile *identity.Profile, existsByOAuthSub, existsByEmail bool) Decision {
	if !profile.Enabled {
		return Decision{Reason: SkipDisabled}
	}
	if profile.Email == "" {
		return Decision{Reason: SkipMissingEmail}
	}
	if existsByOAuthSub || existsByEmail {
		return Decision{Reason: SkipDuplicate}
	}

	return Decision{
		Proceed:           true,
		Role:              deriveRole(profile.Roles),
		EmailNormalized:   strings.ToLower(profile.Email),
		GeneratedPassword: generatePassword(),
	}
}

// deriveRole maps the normalized role list to a local role. Any entry
// containing the admin marker, in any casing, wins.
func deriveRole(roles identity.RoleList) account.Role {
	for _, role := range roles {
		if strings.Contains(strings.ToUpper(role), adminMarker) {
			return account.RoleAdmin
		}
	}
	return account.RoleUser
}

// generatePassword creates an unguessable placeholder credential.
func generatePassword() string {
	buf := make([]byte, 32)
	// rand.Read never fails on supported platforms.
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
