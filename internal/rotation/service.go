// Package rotation owns the dynamic-code lifecycle: issuing fresh
// credentials for active passes, answering staff validation against the
// current record, and the per-pass timers that keep displayed codes moving.
package rotation

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
	"github.com/musicamatics/queueskip/internal/credential"
	"github.com/musicamatics/queueskip/internal/notify"
	"github.com/musicamatics/queueskip/internal/pass/models"
	"github.com/musicamatics/queueskip/internal/rotation/metrics"
	"github.com/musicamatics/queueskip/internal/rotation/store"
	id "github.com/musicamatics/queueskip/pkg/domain"
	dErrors "github.com/musicamatics/queueskip/pkg/domain-errors"
	"github.com/musicamatics/queueskip/pkg/platform/sentinel"
)

// PassReader is the slice of the pass ledger the rotation service needs: the
// current state of a pass, never its transitions.
type PassReader interface {
	GetPass(ctx context.Context, passID id.PassID) (*models.Pass, error)
}

// ValidationResult is what a successful scan returns to staff. It does not
// redeem the pass; redemption is a separate explicit call.
type ValidationResult struct {
	PassID  id.PassID
	UserID  id.UserID
	VenueID id.VenueID
}

// Service issues and validates rotating credentials.
type Service struct {
	codec   *credential.Codec
	records store.Store
	passes  PassReader
	cache   *cache.Cache
	hub     *notify.Hub
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *slog.Logger
	tracer  trace.Tracer
}

func NewService(codec *credential.Codec, records store.Store, passes PassReader, c *cache.Cache, hub *notify.Hub, clk clock.Clock, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		codec:   codec,
		records: records,
		passes:  passes,
		cache:   c,
		hub:     hub,
		clock:   clk,
		metrics: m,
		log:     log,
		tracer:  otel.Tracer("queueskip/rotation"),
	}
}

// Interval returns the configured rotation interval.
func (s *Service) Interval() time.Duration { return s.codec.Interval() }

// Rotate issues a fresh credential for an active pass, persists it, garbage
// collects superseded records, refreshes the display cache, and announces the
// new code to live viewers.
func (s *Service) Rotate(ctx context.Context, passID id.PassID) (*credential.Credential, error) {
	ctx, span := s.tracer.Start(ctx, "rotation.Rotate",
		trace.WithAttributes(attribute.String("pass.id", passID.String())))
	defer span.End()

	pass, err := s.getActivePass(ctx, passID)
	if err != nil {
		return nil, err
	}

	cred, err := s.codec.Issue(pass.ID, pass.VenueID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "issue credential")
	}

	now := s.clock.Now()
	rec := &store.Record{
		ID:        uuid.NewString(),
		PassID:    pass.ID,
		Token:     cred.Token,
		Signature: cred.Signature,
		TokenHash: cred.TokenHash,
		IssuedAt:  cred.IssuedAt,
		ExpiresAt: cred.ExpiresAt,
	}
	if err := s.records.Record(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "record rotation")
	}

	// Lazy GC of superseded records. Non-fatal: a failure here is retried on
	// the next rotation and never blocks the fresh code.
	if err := s.records.GCExpired(ctx, pass.ID, now); err != nil {
		s.log.WarnContext(ctx, "rotation gc failed", "pass_id", pass.ID, "error", err)
	}

	if err := s.cache.SetCredential(ctx, pass.ID, cred); err != nil {
		s.log.WarnContext(ctx, "credential cache write failed", "pass_id", pass.ID, "error", err)
	}

	s.hub.Publish(notify.PassTopic(pass.ID), notify.Event{
		Kind:    notify.EventRotated,
		PassID:  pass.ID.String(),
		NewCode: cred.Token,
	})

	s.metrics.IncrementRotation()
	return cred, nil
}

// CurrentCredential returns the pass's current code, reusing the cached or
// stored one when it has not expired and rotating on demand otherwise.
func (s *Service) CurrentCredential(ctx context.Context, passID id.PassID) (*credential.Credential, error) {
	ctx, span := s.tracer.Start(ctx, "rotation.CurrentCredential",
		trace.WithAttributes(attribute.String("pass.id", passID.String())))
	defer span.End()

	var cached credential.Credential
	if hit, err := s.cache.GetCredential(ctx, passID, &cached); err != nil {
		s.log.WarnContext(ctx, "credential cache read failed", "pass_id", passID, "error", err)
	} else if hit && s.clock.Now().Before(cached.ExpiresAt) {
		return &cached, nil
	}

	rec, err := s.records.Current(ctx, passID, s.clock.Now())
	if err == nil {
		return &credential.Credential{
			Token:     rec.Token,
			Signature: rec.Signature,
			TokenHash: rec.TokenHash,
			IssuedAt:  rec.IssuedAt,
			ExpiresAt: rec.ExpiresAt,
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read current rotation record")
	}

	return s.Rotate(ctx, passID)
}

// Validate checks an opaque token presented by a scanner. The checks run in a
// fixed order: the token's own integrity and expiry, then staleness against
// the current rotation record, then the pass's own state. A win returns the
// holder's identity without redeeming anything.
func (s *Service) Validate(ctx context.Context, opaqueToken string) (*ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "rotation.Validate")
	defer span.End()

	claims, err := s.codec.Verify(opaqueToken)
	if err != nil {
		s.metrics.IncrementValidationFailure("malformed_or_expired")
		return nil, err
	}
	span.SetAttributes(attribute.String("pass.id", claims.PassID.String()))

	rec, err := s.records.Current(ctx, claims.PassID, s.clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.IncrementValidationFailure("stale")
		return nil, dErrors.New(dErrors.CodeStaleCredential, "credential has been superseded")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read current rotation record")
	}
	// Anti-replay: a superseded code fails even before its own expiry.
	if rec.TokenHash != claims.TokenHash {
		s.metrics.IncrementValidationFailure("stale")
		return nil, dErrors.New(dErrors.CodeStaleCredential, "credential has been superseded")
	}

	pass, err := s.getActivePass(ctx, claims.PassID)
	if err != nil {
		s.metrics.IncrementValidationFailure("pass_state")
		return nil, err
	}

	s.metrics.IncrementValidation()
	return &ValidationResult{
		PassID:  pass.ID,
		UserID:  pass.UserID,
		VenueID: pass.VenueID,
	}, nil
}

// getActivePass loads the pass and rejects anything other than an effective
// active state, translating each terminal state to its own error.
func (s *Service) getActivePass(ctx context.Context, passID id.PassID) (*models.Pass, error) {
	pass, err := s.passes.GetPass(ctx, passID)
	if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "pass not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load pass")
	}

	switch pass.EffectiveStatus(s.clock.Now()) {
	case models.StatusActive:
		return pass, nil
	case models.StatusUsed:
		return nil, dErrors.New(dErrors.CodeAlreadyRedeemed, "pass has already been redeemed")
	case models.StatusExpired:
		return nil, dErrors.New(dErrors.CodeExpired, "pass has expired")
	case models.StatusTransferred:
		return nil, dErrors.New(dErrors.CodeNotFound, "pass has been transferred to another holder")
	default:
		return nil, dErrors.New(dErrors.CodeInternal, "pass is in an unknown state")
	}
}
