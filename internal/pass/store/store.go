// Package store persists passes and their append-only audit rows. The
// conditional status flip is the store's one hard guarantee: among concurrent
// callers asking for the same active->terminal transition, exactly one wins.
package store

import (
	"context"
	"time"

	"github.com/musicamatics/queueskip/internal/pass/models"
	id "github.com/musicamatics/queueskip/pkg/domain"
	"github.com/musicamatics/queueskip/pkg/platform/sentinel"
)

// Sentinel re-exports so callers can errors.Is against the store package.
var (
	ErrNotFound     = sentinel.ErrNotFound
	ErrExpired      = sentinel.ErrExpired
	ErrAlreadyUsed  = sentinel.ErrAlreadyUsed
	ErrInvalidState = sentinel.ErrInvalidState
)

// Store is the pass ledger's persistence boundary.
type Store interface {
	// RunInTx executes fn atomically. Store calls made with the ctx passed to
	// fn join the same transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreatePass(ctx context.Context, p *models.Pass) error
	GetPass(ctx context.Context, passID id.PassID) (*models.Pass, error)
	ListUserPasses(ctx context.Context, userID id.UserID, venueID id.VenueID) ([]*models.Pass, error)

	// LockAllocation serializes concurrent allocations for the same user and
	// pass type. Must be called inside RunInTx before CountIssuedSince; the
	// lock is held until the transaction ends, so two racing allocations
	// cannot both observe the pre-insert count and over-issue the quota.
	LockAllocation(ctx context.Context, userID id.UserID, passTypeID id.PassTypeID) error

	// CountIssuedSince counts passes of the given type issued to the user at
	// or after the cutoff, regardless of current status. Consumed allocation
	// stays consumed for the day.
	CountIssuedSince(ctx context.Context, userID id.UserID, passTypeID id.PassTypeID, cutoff time.Time) (int, error)

	// UpdateStatus flips status from->to only when the stored status equals
	// from and the validity window has not passed. Errors: ErrNotFound,
	// ErrAlreadyUsed (stored status is terminal), ErrExpired.
	UpdateStatus(ctx context.Context, passID id.PassID, from, to models.Status, now time.Time) error

	AppendRedemption(ctx context.Context, rec *models.RedemptionRecord) error
	AppendTransfer(ctx context.Context, rec *models.TransferRecord) error

	// Receipt backfill: the only permitted mutation after a terminal state.
	SetPassReceipt(ctx context.Context, passID id.PassID, receiptID string) error
	SetRedemptionReceipt(ctx context.Context, recordID, receiptID string) error
	SetTransferReceipt(ctx context.Context, recordID, receiptID string) error

	GetPassType(ctx context.Context, typeID id.PassTypeID) (*models.PassType, error)
	CreatePassType(ctx context.Context, pt *models.PassType) error
}
