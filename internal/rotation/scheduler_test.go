package rotation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicamatics/queueskip/internal/clock"
	"github.com/musicamatics/queueskip/internal/credential"
	"github.com/musicamatics/queueskip/internal/notify"
	"github.com/musicamatics/queueskip/internal/pass/models"
	passstore "github.com/musicamatics/queueskip/internal/pass/store"
	rotstore "github.com/musicamatics/queueskip/internal/rotation/store"
	id "github.com/musicamatics/queueskip/pkg/domain"
)

const testInterval = 20 * time.Millisecond

type schedFixture struct {
	sched   *Scheduler
	passes  *passstore.Memory
	records *rotstore.Memory
	hub     *notify.Hub
}

// newSchedFixture wires a scheduler against real time with a short rotation
// interval, so timer behavior is observed rather than simulated.
func newSchedFixture(t *testing.T) *schedFixture {
	t.Helper()
	clk := clock.NewSystem()
	codec := credential.New("test-secret", credential.WithClock(clk), credential.WithRotationInterval(testInterval))
	passes := passstore.NewMemory()
	records := rotstore.NewMemory()
	hub := notify.NewHub()
	svc := NewService(codec, records, passes, nil, hub, clk, nil, slog.New(slog.DiscardHandler))
	sched := NewScheduler(svc, hub, slog.New(slog.DiscardHandler))
	t.Cleanup(sched.StopAll)
	return &schedFixture{sched: sched, passes: passes, records: records, hub: hub}
}

func (f *schedFixture) seedPass(t *testing.T, validFor time.Duration) *models.Pass {
	t.Helper()
	now := time.Now().UTC()
	p := &models.Pass{
		ID:         id.NewPassID(),
		UserID:     id.NewUserID(),
		VenueID:    id.NewVenueID(),
		PassTypeID: id.NewPassTypeID(),
		Status:     models.StatusActive,
		ValidFrom:  now,
		ValidUntil: now.Add(validFor),
		CreatedAt:  now,
	}
	require.NoError(t, f.passes.CreatePass(context.Background(), p))
	return p
}

func TestSchedulerRotatesOnInterval(t *testing.T) {
	f := newSchedFixture(t)
	p := f.seedPass(t, time.Hour)

	events, cancel := f.hub.Subscribe(notify.PassTopic(p.ID))
	defer cancel()

	f.sched.Start(p.ID)

	require.Eventually(t, func() bool {
		select {
		case ev := <-events:
			return ev.Kind == notify.EventRotated && ev.NewCode != ""
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerStopIsSynchronous(t *testing.T) {
	f := newSchedFixture(t)
	p := f.seedPass(t, time.Hour)

	f.sched.Start(p.ID)
	require.Eventually(t, func() bool {
		return f.records.Count(p.ID) > 0
	}, time.Second, 5*time.Millisecond)

	f.sched.Stop(p.ID)
	count := f.records.Count(p.ID)

	time.Sleep(4 * testInterval)
	assert.Equal(t, count, f.records.Count(p.ID), "no rotation after Stop returns")
}

// stallingRecords hangs every write until the caller's context ends,
// recording how each one was released.
type stallingRecords struct {
	*rotstore.Memory

	mu   sync.Mutex
	errs []error
}

func (s *stallingRecords) Record(ctx context.Context, _ *rotstore.Record) error {
	<-ctx.Done()
	s.mu.Lock()
	s.errs = append(s.errs, ctx.Err())
	s.mu.Unlock()
	return ctx.Err()
}

func (s *stallingRecords) released() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func TestSchedulerHungTickTimesOutAndStopReturns(t *testing.T) {
	clk := clock.NewSystem()
	codec := credential.New("test-secret", credential.WithClock(clk), credential.WithRotationInterval(testInterval))
	passes := passstore.NewMemory()
	records := &stallingRecords{Memory: rotstore.NewMemory()}
	hub := notify.NewHub()
	svc := NewService(codec, records, passes, nil, hub, clk, nil, slog.New(slog.DiscardHandler))
	sched := NewScheduler(svc, hub, slog.New(slog.DiscardHandler))
	t.Cleanup(sched.StopAll)

	now := time.Now().UTC()
	p := &models.Pass{
		ID:         id.NewPassID(),
		UserID:     id.NewUserID(),
		VenueID:    id.NewVenueID(),
		PassTypeID: id.NewPassTypeID(),
		Status:     models.StatusActive,
		ValidFrom:  now,
		ValidUntil: now.Add(time.Hour),
		CreatedAt:  now,
	}
	require.NoError(t, passes.CreatePass(context.Background(), p))

	sched.Start(p.ID)

	// The stalled write must be released by the tick's own deadline, not by
	// Stop, and the next tick retries.
	require.Eventually(t, func() bool {
		for _, err := range records.released() {
			if errors.Is(err, context.DeadlineExceeded) {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sched.Stop(p.ID)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind a stalled tick")
	}
	assert.False(t, sched.Active(p.ID))
}

func TestSchedulerStopTwiceIsNoOp(t *testing.T) {
	f := newSchedFixture(t)
	p := f.seedPass(t, time.Hour)

	f.sched.Start(p.ID)
	f.sched.Stop(p.ID)
	f.sched.Stop(p.ID)
	assert.False(t, f.sched.Active(p.ID))
}

func TestSchedulerStopUnknownPassIsNoOp(t *testing.T) {
	f := newSchedFixture(t)
	f.sched.Stop(id.NewPassID())
}

func TestSchedulerStartRestartsTimer(t *testing.T) {
	f := newSchedFixture(t)
	p := f.seedPass(t, time.Hour)

	f.sched.Start(p.ID)
	f.sched.Start(p.ID)
	assert.True(t, f.sched.Active(p.ID))

	f.sched.Stop(p.ID)
	assert.False(t, f.sched.Active(p.ID))
}

func TestSchedulerSelfTerminatesOnRedeemedPass(t *testing.T) {
	f := newSchedFixture(t)
	p := f.seedPass(t, time.Hour)

	f.sched.Start(p.ID)
	require.NoError(t, f.passes.UpdateStatus(context.Background(), p.ID, models.StatusActive, models.StatusUsed, time.Now().UTC()))

	require.Eventually(t, func() bool {
		return !f.sched.Active(p.ID)
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerPublishesExpiredOnTerminalPass(t *testing.T) {
	f := newSchedFixture(t)
	p := f.seedPass(t, 2*testInterval)

	events, cancel := f.hub.Subscribe(notify.PassTopic(p.ID))
	defer cancel()

	f.sched.Start(p.ID)

	require.Eventually(t, func() bool {
		select {
		case ev := <-events:
			return ev.Kind == notify.EventExpired
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return !f.sched.Active(p.ID)
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerStopAll(t *testing.T) {
	f := newSchedFixture(t)
	passes := []*models.Pass{
		f.seedPass(t, time.Hour),
		f.seedPass(t, time.Hour),
		f.seedPass(t, time.Hour),
	}
	for _, p := range passes {
		f.sched.Start(p.ID)
	}

	f.sched.StopAll()
	for _, p := range passes {
		assert.False(t, f.sched.Active(p.ID))
	}
}
