package models

import (
	"time"

	id "github.com/musicamatics/queueskip/pkg/domain"
)

// Status is the pass lifecycle state. Transitions are monotonic: active is
// the only non-terminal state, and a stored active pass past its validity
// window reads as expired everywhere.
type Status string

const (
	StatusActive      Status = "active"
	StatusUsed        Status = "used"
	StatusExpired     Status = "expired"
	StatusTransferred Status = "transferred"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool { return s != StatusActive }

// Pass is a single admission right with a bounded validity window. Once the
// status leaves active the row is immutable except for receipt-id backfill.
type Pass struct {
	ID           id.PassID
	UserID       id.UserID
	VenueID      id.VenueID
	PassTypeID   id.PassTypeID
	Status       Status
	ValidFrom    time.Time
	ValidUntil   time.Time
	Restrictions []Restriction
	ReceiptID    string
	CreatedAt    time.Time
}

// EffectiveStatus folds the computed expired state into the stored status.
// Read paths must use this, never the raw Status field, when deciding
// whether a pass is still admissible.
func (p *Pass) EffectiveStatus(now time.Time) Status {
	if p.Status == StatusActive && !now.Before(p.ValidUntil) {
		return StatusExpired
	}
	return p.Status
}

// PassType is a venue-owned template. Immutable for the purposes of this
// core; edits are an external admin concern.
type PassType struct {
	ID            id.PassTypeID
	VenueID       id.VenueID
	Name          string
	Restrictions  []Restriction
	ValidityHours int
	Transferable  bool
}

// AllocationRule grants a user group a daily quantity of one pass type.
// Read-only input to the allocation policy.
type AllocationRule struct {
	VenueID    id.VenueID
	UserGroup  string
	PassTypeID id.PassTypeID
	Quantity   int
	Period     string
	AutoRenew  bool
}

// TransferRecord is the append-only audit row linking a transferred pass to
// both parties and the pass minted for the recipient. Never mutated after
// creation except to attach a late-arriving ledger receipt id.
type TransferRecord struct {
	ID         string
	PassID     id.PassID
	NewPassID  id.PassID
	FromUserID id.UserID
	ToUserID   id.UserID
	ReceiptID  string
	CreatedAt  time.Time
}

// RedemptionRecord is the append-only audit row for a redeemed pass.
type RedemptionRecord struct {
	ID        string
	PassID    id.PassID
	StaffID   id.StaffID
	VenueID   id.VenueID
	ReceiptID string
	CreatedAt time.Time
}
