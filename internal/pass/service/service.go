// Package service orchestrates the pass ledger: allocation against venue
// quotas, redemption, transfer, and the read paths. Status transitions go
// through the store's conditional update so concurrent scanners cannot
// double-spend a pass; everything after the commit — cache invalidation,
// live events, notarization — is advisory and never rolls the commit back.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/musicamatics/queueskip/internal/cache"
	"github.com/musicamatics/queueskip/internal/clock"
	"github.com/musicamatics/queueskip/internal/notary"
	"github.com/musicamatics/queueskip/internal/notify"
	passmetrics "github.com/musicamatics/queueskip/internal/pass/metrics"
	"github.com/musicamatics/queueskip/internal/pass/models"
	"github.com/musicamatics/queueskip/internal/pass/store"
	"github.com/musicamatics/queueskip/internal/venue"
	id "github.com/musicamatics/queueskip/pkg/domain"
	dErrors "github.com/musicamatics/queueskip/pkg/domain-errors"
)

// Notary accepts lifecycle events for best-effort external notarization.
type Notary interface {
	Enqueue(event notary.Event)
}

// TimerStopper ends the rotation timer for a pass that has left the active
// state.
type TimerStopper interface {
	Stop(passID id.PassID)
}

// TransferResult reports both sides of a completed transfer.
type TransferResult struct {
	Source *models.Pass
	New    *models.Pass
	Record *models.TransferRecord
}

// Service is the pass ledger.
type Service struct {
	store   store.Store
	venues  venue.Provider
	cache   *cache.Cache
	hub     *notify.Hub
	notary  Notary
	timers  TimerStopper
	clock   clock.Clock
	metrics *passmetrics.Metrics
	log     *slog.Logger
	tracer  trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithCache installs the display cache invalidated on terminal transitions.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithHub installs the live notification channel.
func WithHub(h *notify.Hub) Option {
	return func(s *Service) { s.hub = h }
}

// WithNotary installs the ledger notarization queue.
func WithNotary(n Notary) Option {
	return func(s *Service) { s.notary = n }
}

// WithTimerStopper installs the rotation scheduler hook called when a pass
// leaves the active state.
func WithTimerStopper(t TimerStopper) Option {
	return func(s *Service) { s.timers = t }
}

// WithClock injects a clock for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) { s.clock = clk }
}

// WithMetrics installs the pass module metrics.
func WithMetrics(m *passmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(st store.Store, venues venue.Provider, opts ...Option) *Service {
	s := &Service{
		store:  st,
		venues: venues,
		clock:  clock.NewSystem(),
		log:    slog.Default(),
		tracer: otel.Tracer("queueskip/pass"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allocate issues every pass the caller's group may still draw today at this
// venue: for each matching rule, remaining = quantity minus passes of that
// type already issued since midnight. The count and the mints share one
// transaction so concurrent requests cannot draw past the quota.
func (s *Service) Allocate(ctx context.Context, userID id.UserID, venueID id.VenueID) ([]*models.Pass, error) {
	ctx, span := s.tracer.Start(ctx, "pass.Allocate",
		trace.WithAttributes(attribute.String("venue.id", venueID.String())))
	defer span.End()

	cfg, err := s.venues.Venue(ctx, venueID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "venue not found")
	}
	group, ok, err := s.venues.Associated(ctx, userID, venueID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "check venue association")
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no active association with this venue")
	}

	now := s.clock.Now()
	var issued []*models.Pass
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		for _, rule := range cfg.AllocationRules {
			if rule.UserGroup != group {
				continue
			}
			minted, err := s.allocateRule(ctx, userID, venueID, rule, now)
			if err != nil {
				return err
			}
			issued = append(issued, minted...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range issued {
		s.notarize(notary.Event{Kind: notary.EventIssued, PassID: p.ID, Timestamp: now})
	}
	s.metrics.AddAllocated(len(issued))
	s.log.InfoContext(ctx, "passes allocated",
		"user_id", userID, "venue_id", venueID, "group", group, "count", len(issued))
	return issued, nil
}

func (s *Service) allocateRule(ctx context.Context, userID id.UserID, venueID id.VenueID, rule models.AllocationRule, now time.Time) ([]*models.Pass, error) {
	// Serialize with any concurrent allocation for the same user and type;
	// otherwise both would count the pre-insert state and overshoot the quota.
	if err := s.store.LockAllocation(ctx, userID, rule.PassTypeID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "lock allocation")
	}
	count, err := s.store.CountIssuedSince(ctx, userID, rule.PassTypeID, startOfDay(now))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "count issued passes")
	}
	remaining := rule.Quantity - count
	if remaining <= 0 {
		return nil, nil
	}

	passType, err := s.store.GetPassType(ctx, rule.PassTypeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "allocation rule references unknown pass type")
	}

	minted := make([]*models.Pass, 0, remaining)
	for i := 0; i < remaining; i++ {
		p := &models.Pass{
			ID:           id.NewPassID(),
			UserID:       userID,
			VenueID:      venueID,
			PassTypeID:   passType.ID,
			Status:       models.StatusActive,
			ValidFrom:    now,
			ValidUntil:   now.Add(time.Duration(passType.ValidityHours) * time.Hour),
			Restrictions: append([]models.Restriction(nil), passType.Restrictions...),
			CreatedAt:    now,
		}
		if err := s.store.CreatePass(ctx, p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "create pass")
		}
		minted = append(minted, p)
	}
	return minted, nil
}

// Redeem consumes an active pass. Exactly one concurrent caller wins the
// status flip; losers get the terminal fact (already redeemed, expired, not
// found). The flip and the audit row commit together.
func (s *Service) Redeem(ctx context.Context, passID id.PassID, staffID id.StaffID) (*models.Pass, error) {
	ctx, span := s.tracer.Start(ctx, "pass.Redeem",
		trace.WithAttributes(attribute.String("pass.id", passID.String())))
	defer span.End()
	start := time.Now()

	now := s.clock.Now()
	var (
		redeemed *models.Pass
		record   *models.RedemptionRecord
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.store.GetPass(ctx, passID)
		if err != nil {
			return translateStoreErr(err)
		}
		for _, r := range p.Restrictions {
			if !r.Allows(now) {
				return dErrors.New(dErrors.CodeRestricted, "pass restrictions do not permit redemption now")
			}
		}
		if err := s.store.UpdateStatus(ctx, passID, models.StatusActive, models.StatusUsed, now); err != nil {
			return translateStoreErr(err)
		}
		record = &models.RedemptionRecord{
			ID:        uuid.NewString(),
			PassID:    passID,
			StaffID:   staffID,
			VenueID:   p.VenueID,
			CreatedAt: now,
		}
		if err := s.store.AppendRedemption(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "append redemption record")
		}
		p.Status = models.StatusUsed
		redeemed = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterTerminal(ctx, passID)
	s.publish(notify.PassTopic(passID), notify.Event{
		Kind:   notify.EventRedeemed,
		PassID: passID.String(),
	})
	s.publish(notify.VenueTopic(redeemed.VenueID), notify.Event{
		Kind:   notify.EventRedeemed,
		PassID: passID.String(),
	})
	s.notarize(notary.Event{Kind: notary.EventRedeemed, PassID: passID, RecordID: record.ID, Timestamp: now})

	s.metrics.IncrementRedeemed()
	s.metrics.ObserveRedeem(start)
	s.log.InfoContext(ctx, "pass redeemed", "pass_id", passID, "staff_id", staffID)
	return redeemed, nil
}

// Transfer moves an active pass between holders as a split: the source pass
// ends in the transferred state, a new active pass is minted for the
// recipient with the same type, venue, and validity window, and a
// TransferRecord links both. All three commit together.
func (s *Service) Transfer(ctx context.Context, passID id.PassID, fromUserID, toUserID id.UserID) (*TransferResult, error) {
	ctx, span := s.tracer.Start(ctx, "pass.Transfer",
		trace.WithAttributes(attribute.String("pass.id", passID.String())))
	defer span.End()

	now := s.clock.Now()
	p, err := s.store.GetPass(ctx, passID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	if p.UserID != fromUserID {
		return nil, dErrors.New(dErrors.CodeNotOwner, "pass is not owned by the sender")
	}

	cfg, err := s.venues.Venue(ctx, p.VenueID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load venue configuration")
	}
	if !cfg.Features.PassTransfer {
		return nil, dErrors.New(dErrors.CodeTransferDisabled, "pass transfer is disabled at this venue")
	}
	passType, err := s.store.GetPassType(ctx, p.PassTypeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load pass type")
	}
	if !passType.Transferable {
		return nil, dErrors.New(dErrors.CodeNotTransferable, "this pass type cannot be transferred")
	}
	if _, ok, err := s.venues.Associated(ctx, toUserID, p.VenueID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "check recipient association")
	} else if !ok {
		return nil, dErrors.New(dErrors.CodeRecipientNotEligible, "recipient has no active association with this venue")
	}

	var result *TransferResult
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateStatus(ctx, passID, models.StatusActive, models.StatusTransferred, now); err != nil {
			return translateStoreErr(err)
		}
		newPass := &models.Pass{
			ID:           id.NewPassID(),
			UserID:       toUserID,
			VenueID:      p.VenueID,
			PassTypeID:   p.PassTypeID,
			Status:       models.StatusActive,
			ValidFrom:    p.ValidFrom,
			ValidUntil:   p.ValidUntil,
			Restrictions: append([]models.Restriction(nil), p.Restrictions...),
			CreatedAt:    now,
		}
		if err := s.store.CreatePass(ctx, newPass); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "create recipient pass")
		}
		record := &models.TransferRecord{
			ID:         uuid.NewString(),
			PassID:     passID,
			NewPassID:  newPass.ID,
			FromUserID: fromUserID,
			ToUserID:   toUserID,
			CreatedAt:  now,
		}
		if err := s.store.AppendTransfer(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "append transfer record")
		}
		source := *p
		source.Status = models.StatusTransferred
		result = &TransferResult{Source: &source, New: newPass, Record: record}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterTerminal(ctx, passID)
	s.invalidate(ctx, result.New.ID)
	s.publish(notify.PassTopic(passID), notify.Event{
		Kind:      notify.EventTransferred,
		PassID:    passID.String(),
		NewPassID: result.New.ID.String(),
	})
	s.publish(notify.VenueTopic(result.New.VenueID), notify.Event{
		Kind:      notify.EventTransferred,
		PassID:    passID.String(),
		NewPassID: result.New.ID.String(),
	})
	s.notarize(notary.Event{Kind: notary.EventTransferred, PassID: passID, RecordID: result.Record.ID, Timestamp: now})

	s.metrics.IncrementTransferred()
	s.log.InfoContext(ctx, "pass transferred",
		"pass_id", passID, "new_pass_id", result.New.ID, "from", fromUserID, "to", toUserID)
	return result, nil
}

// GetPass returns the pass with its effective status folded in.
func (s *Service) GetPass(ctx context.Context, passID id.PassID) (*models.Pass, error) {
	var cached models.Pass
	if hit, err := s.cache.GetPass(ctx, passID, &cached); err != nil {
		s.log.WarnContext(ctx, "pass cache read failed", "pass_id", passID, "error", err)
	} else if hit {
		cached.Status = cached.EffectiveStatus(s.clock.Now())
		return &cached, nil
	}

	p, err := s.store.GetPass(ctx, passID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	if err := s.cache.SetPass(ctx, passID, p); err != nil {
		s.log.WarnContext(ctx, "pass cache write failed", "pass_id", passID, "error", err)
	}
	p.Status = p.EffectiveStatus(s.clock.Now())
	return p, nil
}

// ListUserPasses returns the user's passes at a venue, effective statuses
// folded in.
func (s *Service) ListUserPasses(ctx context.Context, userID id.UserID, venueID id.VenueID) ([]*models.Pass, error) {
	passes, err := s.store.ListUserPasses(ctx, userID, venueID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list passes")
	}
	now := s.clock.Now()
	for _, p := range passes {
		p.Status = p.EffectiveStatus(now)
	}
	return passes, nil
}

// ReceiptFunc returns the notarization receipt backfill callback: issuance
// receipts land on the pass row, redemption and transfer receipts on their
// audit rows.
func (s *Service) ReceiptFunc() notary.ReceiptFunc {
	return ReceiptFunc(s.store)
}

// ReceiptFunc builds the backfill callback from a bare store, letting the
// notary queue be constructed before the service that feeds it.
func ReceiptFunc(st store.Store) notary.ReceiptFunc {
	return func(ctx context.Context, event notary.Event, receiptID string) error {
		switch event.Kind {
		case notary.EventIssued:
			return st.SetPassReceipt(ctx, event.PassID, receiptID)
		case notary.EventRedeemed:
			return st.SetRedemptionReceipt(ctx, event.RecordID, receiptID)
		case notary.EventTransferred:
			return st.SetTransferReceipt(ctx, event.RecordID, receiptID)
		default:
			return nil
		}
	}
}

// afterTerminal runs the post-commit cleanup shared by redeem and transfer:
// drop cached entries and end the rotation timer.
func (s *Service) afterTerminal(ctx context.Context, passID id.PassID) {
	s.invalidate(ctx, passID)
	if s.timers != nil {
		s.timers.Stop(passID)
	}
}

func (s *Service) invalidate(ctx context.Context, passID id.PassID) {
	if err := s.cache.Invalidate(ctx, passID); err != nil {
		s.log.WarnContext(ctx, "cache invalidation failed", "pass_id", passID, "error", err)
	}
}

func (s *Service) publish(topic string, event notify.Event) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(topic, event)
}

func (s *Service) notarize(event notary.Event) {
	if s.notary == nil {
		return
	}
	s.notary.Enqueue(event)
}

// translateStoreErr maps store sentinels onto user-facing codes.
func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "pass not found")
	case errors.Is(err, store.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeAlreadyRedeemed, "pass has already been redeemed or transferred")
	case errors.Is(err, store.ErrExpired):
		return dErrors.New(dErrors.CodeExpired, "pass has expired")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "pass store error")
	}
}

// startOfDay truncates to midnight in the instant's location; the daily
// allocation quota resets there.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
