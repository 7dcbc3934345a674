// Package identity resolves bearer tokens into the caller context the API
// trusts: user id, venue association, user group, and venue role. Token
// issuance lives with the external identity provider; this side only
// validates.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/musicamatics/queueskip/internal/platform/middleware"
)

type claims struct {
	VenueID   string `json:"venueId"`
	UserGroup string `json:"userGroup"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// JWTValidator validates HS256 identity tokens sharing the server secret.
type JWTValidator struct {
	secret []byte
}

func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// ValidateToken implements middleware.IdentityValidator.
func (v *JWTValidator) ValidateToken(tokenString string) (*middleware.Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse identity token: %w", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid identity token")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("identity token carries no subject")
	}
	return &middleware.Identity{
		UserID:    c.Subject,
		VenueID:   c.VenueID,
		UserGroup: c.UserGroup,
		Role:      c.Role,
	}, nil
}

// Sign mints an identity token. Used by tests and the dev seeding path; in
// production tokens come from the identity provider.
func Sign(secret string, ident middleware.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		VenueID:   ident.VenueID,
		UserGroup: ident.UserGroup,
		Role:      ident.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}
