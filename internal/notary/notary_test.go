package notary

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "github.com/musicamatics/queueskip/pkg/domain"
)

type fakeRecorder struct {
	mu       sync.Mutex
	failures int
	calls    int
	receipt  string
}

func (f *fakeRecorder) Notarize(_ context.Context, _ Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("ledger unavailable")
	}
	return f.receipt, nil
}

func (f *fakeRecorder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestQueueDeliversReceipt(t *testing.T) {
	rec := &fakeRecorder{receipt: "rcpt-1"}
	var mu sync.Mutex
	backfilled := map[string]string{}

	q := NewQueue(rec, discardLogger(),
		WithRetry(2, time.Millisecond),
		WithReceiptFunc(func(_ context.Context, ev Event, receiptID string) error {
			mu.Lock()
			defer mu.Unlock()
			backfilled[ev.PassID.String()] = receiptID
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	passID := id.NewPassID()
	q.Enqueue(Event{Kind: EventRedeemed, PassID: passID})

	select {
	case outcome := <-q.Outcomes():
		require.NoError(t, outcome.Err)
		assert.Equal(t, "rcpt-1", outcome.ReceiptID)
	case <-time.After(time.Second):
		t.Fatal("no outcome")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "rcpt-1", backfilled[passID.String()])
}

func TestQueueRetriesTransientFailures(t *testing.T) {
	rec := &fakeRecorder{failures: 2, receipt: "rcpt-2"}
	q := NewQueue(rec, discardLogger(), WithRetry(3, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue(Event{Kind: EventIssued, PassID: id.NewPassID()})

	select {
	case outcome := <-q.Outcomes():
		require.NoError(t, outcome.Err)
		assert.Equal(t, "rcpt-2", outcome.ReceiptID)
	case <-time.After(time.Second):
		t.Fatal("no outcome")
	}
	assert.Equal(t, 3, rec.callCount())
}

func TestQueueSurfacesFinalFailure(t *testing.T) {
	rec := &fakeRecorder{failures: 100}
	q := NewQueue(rec, discardLogger(), WithRetry(1, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue(Event{Kind: EventTransferred, PassID: id.NewPassID()})

	select {
	case outcome := <-q.Outcomes():
		require.Error(t, outcome.Err)
		assert.Empty(t, outcome.ReceiptID)
	case <-time.After(time.Second):
		t.Fatal("no outcome")
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	// No worker running: the inbox fills, then drops.
	q := NewQueue(&fakeRecorder{receipt: "r"}, discardLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.Enqueue(Event{Kind: EventIssued, PassID: id.NewPassID()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked")
	}
}

func TestEnqueueReportsDropsAsDropped(t *testing.T) {
	// No worker running: once the inbox fills, further events are dropped
	// and their outcomes say so rather than masquerading as timeouts.
	q := NewQueue(&fakeRecorder{receipt: "r"}, discardLogger())

	for i := 0; i < 300; i++ {
		q.Enqueue(Event{Kind: EventIssued, PassID: id.NewPassID()})
	}

	select {
	case outcome := <-q.Outcomes():
		require.ErrorIs(t, outcome.Err, ErrDropped)
	default:
		t.Fatal("expected a dropped outcome once the inbox filled")
	}
}
