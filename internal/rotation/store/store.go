// Package store keeps the append-only record of issued dynamic codes per
// pass. The current record — the most recently created one whose expiry has
// not passed — is the anti-replay reference point for validation.
package store

import (
	"context"
	"time"

	id "github.com/musicamatics/queueskip/pkg/domain"
	"github.com/musicamatics/queueskip/pkg/platform/sentinel"
)

var ErrNotFound = sentinel.ErrNotFound

// Record is one issued credential for a pass.
type Record struct {
	ID        string
	PassID    id.PassID
	Token     string
	Signature string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Store is the rotation record persistence boundary.
type Store interface {
	// Record appends a newly issued credential.
	Record(ctx context.Context, rec *Record) error

	// Current returns the most recently created record for the pass whose
	// expiresAt is after now, or ErrNotFound.
	Current(ctx context.Context, passID id.PassID, now time.Time) (*Record, error)

	// GCExpired deletes all records for the pass whose expiresAt is at or
	// before now. Failures are non-fatal to callers: GC is safe to retry on
	// the next rotation and never blocks validation.
	GCExpired(ctx context.Context, passID id.PassID, now time.Time) error
}
