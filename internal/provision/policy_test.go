package provision

import (
	"testing"

	"provisioner/internal/account"
	"provisioner/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabledProfile(email string, roles ...string) *identity.Profile {
	return &identity.Profile{
		ExternalID:      "abc-123",
		Email:           email,
		Name:            "Test User",
		ProfileImageURL: identity.DefaultProfileImageURL,
		Roles:           identity.RoleList(roles),
		Enabled:         true,
	}
}

func TestDecideSkipsDisabledProfile(t *testing.T) {
	profile := enabledProfile("a@ex.com", "ADMIN_ROLE")
	profile.Enabled = false

	decision := Decide(profile, false, false)

	assert.False(t, decision.Proceed)
	assert.Equal(t, SkipDisabled, decision.Reason)
}

func TestDecideSkipsMissingEmail(t *testing.T) {
	decision := Decide(enabledProfile(""), false, false)

	assert.False(t, decision.Proceed)
	assert.Equal(t, SkipMissingEmail, decision.Reason)
}

func TestDecideSkipsDuplicates(t *testing.T) {
	t.Run("existing oauth_sub", func(t *testing.T) {
		decision := Decide(enabledProfile("a@ex.com"), true, false)
		assert.False(t, decision.Proceed)
		assert.Equal(t, SkipDuplicate, decision.Reason)
	})

	t.Run("existing email", func(t *testing.T) {
		decision := Decide(enabledProfile("a@ex.com"), false, true)
		assert.False(t, decision.Proceed)
		assert.Equal(t, SkipDuplicate, decision.Reason)
	})
}

func TestDecideNormalizesEmail(t *testing.T) {
	decision := Decide(enabledProfile("A@Ex.com", "ADMIN_ROLE"), false, false)

	require.True(t, decision.Proceed)
	assert.Equal(t, "a@ex.com", decision.EmailNormalized)
	assert.Equal(t, account.RoleAdmin, decision.Role)
}

func TestDecideRoleDerivation(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  account.Role
	}{
		{"admin marker uppercase", []string{"ADMIN_ROLE"}, account.RoleAdmin},
		{"admin marker lowercase", []string{"site-admin"}, account.RoleAdmin},
		{"admin marker embedded", []string{"SystemAdministrator"}, account.RoleAdmin},
		{"admin among others", []string{"viewer", "editor", "Admin"}, account.RoleAdmin},
		{"no admin marker", []string{"viewer", "editor"}, account.RoleUser},
		{"empty roles", nil, account.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Decide(enabledProfile("a@ex.com", tt.roles...), false, false)
			require.True(t, decision.Proceed)
			assert.Equal(t, tt.want, decision.Role)
		})
	}
}

func TestDecideGeneratesOpaquePassword(t *testing.T) {
	first := Decide(enabledProfile("a@ex.com"), false, false)
	second := Decide(enabledProfile("a@ex.com"), false, false)

	require.True(t, first.Proceed)
	assert.NotEmpty(t, first.GeneratedPassword)
	assert.NotEqual(t, first.GeneratedPassword, second.GeneratedPassword)
}
