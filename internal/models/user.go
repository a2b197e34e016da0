package models

import "time"

const (
	RoleStudent = "student"
	RoleMentor  = "mentor"
)

// User is the authoritative profile record, keyed by the auth user id.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Bio        *string   `json:"bio,omitempty"`
	AvatarURL  *string   `json:"avatar_url,omitempty"`
	Role       string    `json:"role"`
	University *string   `json:"university,omitempty"`
	Major      *string   `json:"major,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionMetadata is the degraded identity embedded in the access token
// at issuance. It is enough to render a name and a role before the
// authoritative profile row has been fetched.
type SessionMetadata struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Session is the token bundle issued by the auth endpoints. The refresh
// lifecycle is owned by the server; clients hold a reference and swap it
// wholesale on refresh.
type Session struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	UserID       string          `json:"user_id"`
	Metadata     SessionMetadata `json:"metadata"`
}

func ValidRole(role string) bool {
	return role == RoleStudent || role == RoleMentor
}
