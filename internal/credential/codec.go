// Package credential issues and verifies the rotating dynamic codes. Pure
// crypto and encoding: the codec never touches a store, so a verified token
// is necessarily checked against the rotation store before it means anything.
package credential

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/musicamatics/queueskip/internal/clock"
	id "github.com/musicamatics/queueskip/pkg/domain"
	dErrors "github.com/musicamatics/queueskip/pkg/domain-errors"
)

// DefaultRotationInterval is how long each dynamic code stays current in the
// reference deployment.
const DefaultRotationInterval = 30 * time.Second

// Credential is one issued dynamic code.
type Credential struct {
	// Token is the opaque signed artifact presented by the holder.
	Token string `json:"token"`
	// Signature is an independent keyed signature over Token, verified in
	// addition to the token's own signature.
	Signature string `json:"signature"`
	// TokenHash identifies this credential in the rotation store.
	TokenHash string `json:"tokenHash"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Claims is what Verify recovers from a well-formed token.
type Claims struct {
	PassID    id.PassID
	VenueID   id.VenueID
	TokenHash string
	ExpiresAt time.Time
}

type tokenClaims struct {
	PassID    string `json:"passId"`
	VenueID   string `json:"venueId"`
	TokenHash string `json:"tokenHash"`
	jwt.RegisteredClaims
}

// Codec signs and verifies dynamic codes with a shared server secret.
type Codec struct {
	secret   []byte
	interval time.Duration
	skew     time.Duration
	clock    clock.Clock
}

// Option configures the Codec.
type Option func(*Codec)

// WithRotationInterval overrides the credential lifetime.
func WithRotationInterval(d time.Duration) Option {
	return func(c *Codec) { c.interval = d }
}

// WithClockSkew sets the allowed expiry tolerance. Zero (the default) means
// strict comparison.
func WithClockSkew(d time.Duration) Option {
	return func(c *Codec) { c.skew = d }
}

// WithClock injects a clock for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Codec) { c.clock = clk }
}

func New(secret string, opts ...Option) *Codec {
	c := &Codec{
		secret:   []byte(secret),
		interval: DefaultRotationInterval,
		clock:    clock.NewSystem(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interval returns the configured rotation interval.
func (c *Codec) Interval() time.Duration { return c.interval }

// Issue mints a fresh credential for the pass: a high-entropy value hashed
// into tokenHash, carried in a signed time-boxed payload, plus the secondary
// HMAC over the serialized token.
func (c *Codec) Issue(passID id.PassID, venueID id.VenueID) (*Credential, error) {
	entropy := make([]byte, 32)
	if _, err := rand.Read(entropy); err != nil {
		return nil, fmt.Errorf("draw token entropy: %w", err)
	}
	hash := sha256.Sum256(entropy)
	tokenHash := hex.EncodeToString(hash[:])

	now := c.clock.Now()
	expiresAt := now.Add(c.interval)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		PassID:    passID.String(),
		VenueID:   venueID.String(),
		TokenHash: tokenHash,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}

	return &Credential{
		Token:     signed,
		Signature: c.sign(signed),
		TokenHash: tokenHash,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify decodes and checks a presented token. It consults no external
// state: staleness against the current rotation is the rotation store's
// check, not the codec's.
func (c *Codec) Verify(opaqueToken string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(opaqueToken, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.clock.Now), jwt.WithLeeway(c.skew))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeExpired, "credential has expired")
		}
		return nil, dErrors.New(dErrors.CodeMalformedCredential, "credential is malformed or has a bad signature")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeMalformedCredential, "credential is invalid")
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeMalformedCredential, "credential claims are invalid")
	}

	passID, err := id.ParsePassID(claims.PassID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeMalformedCredential, "credential carries an invalid pass id")
	}
	venueID, err := id.ParseVenueID(claims.VenueID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeMalformedCredential, "credential carries an invalid venue id")
	}
	if claims.TokenHash == "" {
		return nil, dErrors.New(dErrors.CodeMalformedCredential, "credential carries no token hash")
	}

	return &Claims{
		PassID:    passID,
		VenueID:   venueID,
		TokenHash: claims.TokenHash,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerifySignature checks the secondary HMAC over the serialized token.
func (c *Codec) VerifySignature(token, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(token))
	return hmac.Equal(mac.Sum(nil), want)
}

func (c *Codec) sign(token string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
