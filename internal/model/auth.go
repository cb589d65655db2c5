package model

import "github.com/golang-jwt/jwt/v5"

// Roles surfaced by the identity collaborator.
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
)

// CallerIdentity is the authenticated caller as resolved from the bearer
// token. The core treats it as opaque beyond UserID and Role.
type CallerIdentity struct {
	UserID string
	Role   string
}

// IsModerator reports whether the identity carries the elevated moderation
// role, which may force-end any session.
func (c CallerIdentity) IsModerator() bool {
	return c.Role == RoleModerator
}

// UserClaims is the JWT payload issued by the identity collaborator.
type UserClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
