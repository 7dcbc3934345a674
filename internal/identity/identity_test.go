package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicamatics/queueskip/internal/platform/middleware"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	ident := middleware.Identity{
		UserID:    "user-1",
		VenueID:   "venue-1",
		UserGroup: "students",
		Role:      "staff",
	}
	token, err := Sign("secret", ident, time.Minute)
	require.NoError(t, err)

	got, err := NewJWTValidator("secret").ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, &ident, got)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := Sign("secret", middleware.Identity{UserID: "user-1"}, time.Minute)
	require.NoError(t, err)

	_, err = NewJWTValidator("other").ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	token, err := Sign("secret", middleware.Identity{UserID: "user-1"}, -time.Minute)
	require.NoError(t, err)

	_, err = NewJWTValidator("secret").ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsMissingSubject(t *testing.T) {
	token, err := Sign("secret", middleware.Identity{VenueID: "venue-1"}, time.Minute)
	require.NoError(t, err)

	_, err = NewJWTValidator("secret").ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, err := NewJWTValidator("secret").ValidateToken("garbage")
	assert.Error(t, err)
}
