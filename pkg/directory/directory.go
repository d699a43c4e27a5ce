package directory

import (
	"context"
	"slices"
)

// User is a notification recipient as seen by the directory.
type User struct {
	ID            string   `bson:"_id" json:"id"`
	Email         string   `bson:"email" json:"email"`
	Phone         string   `bson:"phone,omitempty" json:"phone,omitempty"`
	Name          string   `bson:"name,omitempty" json:"name,omitempty"`
	Role          string   `bson:"role" json:"role"`
	IsActive      bool     `bson:"is_active" json:"is_active"`
	PremiumActive bool     `bson:"premium_active" json:"premium_active"`
	PushTokens    []string `bson:"push_tokens,omitempty" json:"push_tokens,omitempty"`
	WebhookURL    string   `bson:"webhook_url,omitempty" json:"webhook_url,omitempty"`
	Timezone      string   `bson:"timezone,omitempty" json:"timezone,omitempty"`
}

// HasRole reports whether the user holds one of roles.
func (u User) HasRole(roles ...string) bool {
	return slices.Contains(roles, u.Role)
}

// DisplayName returns Name, falling back to Email.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Directory looks users up. Implementations return ErrUserNotFound for
// unknown ids in FindByID and silently skip them in FindByIDs.
type Directory interface {
	FindByID(ctx context.Context, id string) (User, error)
	// FindByRoles returns active users holding any of roles.
	FindByRoles(ctx context.Context, roles ...string) ([]User, error)
	FindByIDs(ctx context.Context, ids []string) ([]User, error)
}
