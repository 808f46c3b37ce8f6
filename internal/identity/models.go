package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultProfileImageURL is stored when the identity service supplies none.
const DefaultProfileImageURL = "/user.png"

// RoleList normalizes the identity service's polymorphic roles field. The
// wire value may be a single string or an array; after unmarshalling it is
// always a flat list of role-marker strings, so the polymorphism never
// leaks past this boundary.
type RoleList []string

// UnmarshalJSON accepts a scalar string, an array, or null.
func (r *RoleList) UnmarshalJSON(data []byte) error {
	// Unmarshalling null into a plain string is a no-op success, so the
	// literal must be handled before the scalar attempt.
	if string(bytes.TrimSpace(data)) == "null" {
		*r = nil
		return nil
	}

	var scalar string
	if err := json.Unmarshal(data, &scalar); err == nil {
		*r = RoleList{scalar}
		return nil
	}

	var list []any
	if err := json.Unmarshal(data, &list); err == nil {
		roles := make(RoleList, 0, len(list))
		for _, item := range list {
			roles = append(roles, fmt.Sprint(item))
		}
		*r = roles
		return nil
	}

	return fmt.Errorf("roles: expected string or array, got %s", string(data))
}

// Profile is the user record resolved from the identity service, with
// field defaults already applied. It is created per resolution attempt and
// never cached across events.
type Profile struct {
	ExternalID      string
	Email           string
	Name            string
	ProfileImageURL string
	Roles           RoleList
	Enabled         bool
}

// profilePayload matches the identity service's JSON response body.
type profilePayload struct {
	UUID            string   `json:"uuid"`
	Email           string   `json:"email"`
	Name            string   `json:"name"`
	ProfileImageURL *string  `json:"profileImageUrl"`
	Roles           RoleList `json:"roles"`
	Enabled         *bool    `json:"enabled"`
}

// toProfile applies the documented field defaults: name falls back to the
// external id, the image URL to a canonical placeholder, enabled to true.
func (p profilePayload) toProfile(externalID string) *Profile {
	profile := &Profile{
		ExternalID:      p.UUID,
		Email:           p.Email,
		Name:            p.Name,
		ProfileImageURL: DefaultProfileImageURL,
		Roles:           p.Roles,
		Enabled:         true,
	}
	if profile.ExternalID == "" {
		profile.ExternalID = externalID
	}
	if profile.Name == "" {
		profile.Name = externalID
	}
	if p.ProfileImageURL != nil {
		profile.ProfileImageURL = *p.ProfileImageURL
	}
	if p.Enabled != nil {
		profile.Enabled = *p.Enabled
	}
	return profile
}
