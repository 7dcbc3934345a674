// Package notary records pass lifecycle events with an external ledger.
// Notarization is advisory: the triggering operation has already committed,
// and no outcome here may affect it. The queue gives the fire-and-forget
// calls a supervised home — bounded retry, a receipt callback on success,
// and an observable outcome stream so tests can assert deterministically.
package notary

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "github.com/musicamatics/queueskip/pkg/domain"
)

// ErrDropped is the outcome error for an event discarded because the inbox
// was full. Distinct from a timeout: the recorder was never attempted.
var ErrDropped = errors.New("notary: event dropped, inbox full")

// EventKind enumerates what gets notarized.
type EventKind string

const (
	EventIssued      EventKind = "pass_issued"
	EventRedeemed    EventKind = "pass_redeemed"
	EventTransferred EventKind = "pass_transferred"
)

// Event is one notarization request. RecordID points at the audit row that
// receives the receipt backfill; for EventIssued it is empty and the receipt
// lands on the pass itself.
type Event struct {
	Kind      EventKind
	PassID    id.PassID
	RecordID  string
	Timestamp time.Time
}

// Recorder is the external ledger collaborator. It may be slow and may fail;
// both are fine.
type Recorder interface {
	Notarize(ctx context.Context, event Event) (receiptID string, err error)
}

// Outcome reports the final result for one event after retries.
type Outcome struct {
	Event     Event
	ReceiptID string
	Err       error
}

// ReceiptFunc is invoked with the receipt id after a successful notarization
// so the caller can backfill audit rows. Errors are logged only.
type ReceiptFunc func(ctx context.Context, event Event, receiptID string) error

// Queue is the supervised best-effort pipeline in front of a Recorder.
type Queue struct {
	recorder   Recorder
	receipts   ReceiptFunc
	logger     *slog.Logger
	inbox      chan Event
	outcomes   chan Outcome
	maxRetries int
	backoff    time.Duration
	done       chan struct{}
}

// Option configures the Queue.
type Option func(*Queue)

// WithRetry overrides the retry budget and base backoff.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(q *Queue) {
		q.maxRetries = maxRetries
		q.backoff = backoff
	}
}

// WithReceiptFunc installs the receipt backfill callback.
func WithReceiptFunc(fn ReceiptFunc) Option {
	return func(q *Queue) {
		q.receipts = fn
	}
}

// NewQueue builds a queue; call Run to start the worker.
func NewQueue(recorder Recorder, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		recorder:   recorder,
		logger:     logger,
		inbox:      make(chan Event, 256),
		outcomes:   make(chan Outcome, 256),
		maxRetries: 3,
		backoff:    time.Second,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue submits an event without blocking. A full inbox drops the event:
// notarization never backpressures the core.
func (q *Queue) Enqueue(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case q.inbox <- event:
	default:
		q.logger.Warn("notary inbox full, dropping event",
			"kind", string(event.Kind),
			"pass_id", event.PassID.String(),
		)
		q.emit(Outcome{Event: event, Err: ErrDropped})
	}
}

// Outcomes exposes the final result per event. Consumption is optional; the
// channel drops when nobody reads.
func (q *Queue) Outcomes() <-chan Outcome {
	return q.outcomes
}

// Run consumes the inbox until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-q.inbox:
			q.process(ctx, event)
		}
	}
}

// Wait blocks until Run has returned.
func (q *Queue) Wait() {
	<-q.done
}

func (q *Queue) process(ctx context.Context, event Event) {
	var lastErr error
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				q.emit(Outcome{Event: event, Err: ctx.Err()})
				return
			case <-time.After(q.backoff * time.Duration(attempt)):
			}
		}

		receiptID, err := q.recorder.Notarize(ctx, event)
		if err == nil {
			if q.receipts != nil {
				if err := q.receipts(ctx, event, receiptID); err != nil {
					q.logger.Error("receipt backfill failed",
						"kind", string(event.Kind),
						"pass_id", event.PassID.String(),
						"receipt_id", receiptID,
						"error", err,
					)
				}
			}
			q.emit(Outcome{Event: event, ReceiptID: receiptID})
			return
		}
		lastErr = err
	}

	q.logger.Error("notarization failed after retries",
		"kind", string(event.Kind),
		"pass_id", event.PassID.String(),
		"error", lastErr,
	)
	q.emit(Outcome{Event: event, Err: lastErr})
}

func (q *Queue) emit(outcome Outcome) {
	select {
	case q.outcomes <- outcome:
	default:
	}
}
