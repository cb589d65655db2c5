package service

import (
	"errors"
	"liveclass/internal/model"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService is the adapter over the external identity collaborator: it
// validates the bearer tokens that collaborator issues and resolves them
// into a CallerIdentity. Token generation exists for operators and tests;
// credential issuance flows live outside this service.
type AuthService struct {
	jwtSecret []byte
}

// NewAuthService creates a new auth service.
func NewAuthService() *AuthService {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "super-secret-key-change-in-production"
	}
	return &AuthService{jwtSecret: []byte(secret)}
}

// GenerateToken creates a signed token for a user identity.
func (s *AuthService) GenerateToken(userID, role string) (string, error) {
	claims := &model.UserClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a bearer token and returns the caller identity.
func (s *AuthService) ValidateToken(tokenString string) (model.CallerIdentity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return model.CallerIdentity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.UserClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return model.CallerIdentity{}, ErrInvalidToken
	}

	role := claims.Role
	if role == "" {
		role = model.RoleMember
	}
	return model.CallerIdentity{UserID: claims.UserID, Role: role}, nil
}
