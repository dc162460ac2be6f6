package identity

import "time"

// RoleType represents a role granted to a signed-in user.
type RoleType string

const (
	RoleAdmin  RoleType = "admin"  // Can manage portfolio content through the admin screens
	RoleEditor RoleType = "editor" // Can edit existing content but not manage users
	RoleViewer RoleType = "viewer" // Default role for any signed-in visitor
)

// Identity is the profile of the currently signed-in user as reported by the
// backend. It is immutable for the lifetime of a session and replaced
// wholesale on re-login.
type Identity struct {
	ID          string     `json:"id"`                  // Unique identifier for the user
	Email       string     `json:"email"`               // User's email address
	DisplayName string     `json:"name"`                // Name shown in the UI
	AvatarURL   string     `json:"avatarUrl,omitempty"` // Optional profile picture
	Roles       []RoleType `json:"roles,omitempty"`     // Roles granted by the backend
	CreatedAt   time.Time  `json:"createdAt,omitempty"` // When the account was created
}

// IsAdmin returns true if the user carries the admin role.
func (i *Identity) IsAdmin() bool {
	if i == nil {
		return false
	}
	for _, role := range i.Roles {
		if role == RoleAdmin {
			return true
		}
	}
	return false
}

// HasRole reports whether the user carries the given role.
func (i *Identity) HasRole(role RoleType) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
