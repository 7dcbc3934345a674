package rotation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/musicamatics/queueskip/internal/notify"
	id "github.com/musicamatics/queueskip/pkg/domain"
	dErrors "github.com/musicamatics/queueskip/pkg/domain-errors"
)

type timer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler runs one rotation timer per actively-displayed pass. The timer
// registry is explicit and owned here: Start replaces any existing timer for
// the pass, Stop is synchronous (no rotation lands after it returns), and
// StopAll drains everything at shutdown so no credential is minted once
// teardown has begun.
type Scheduler struct {
	svc *Service
	hub *notify.Hub
	log *slog.Logger

	mu     sync.Mutex
	timers map[id.PassID]*timer
}

func NewScheduler(svc *Service, hub *notify.Hub, log *slog.Logger) *Scheduler {
	return &Scheduler{
		svc:    svc,
		hub:    hub,
		log:    log,
		timers: make(map[id.PassID]*timer),
	}
}

// Start begins rotating the pass's credential on the configured interval.
// Calling Start for a pass that already has a timer restarts it.
func (sch *Scheduler) Start(passID id.PassID) {
	sch.mu.Lock()
	old := sch.timers[passID]
	delete(sch.timers, passID)
	sch.mu.Unlock()
	if old != nil {
		old.cancel()
		<-old.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &timer{cancel: cancel, done: make(chan struct{})}

	sch.mu.Lock()
	sch.timers[passID] = t
	sch.mu.Unlock()

	go sch.run(ctx, passID, t)
}

// Stop cancels the pass's timer. By the time Stop returns, no further
// rotation for this pass will occur. Stopping an unknown pass is a no-op.
func (sch *Scheduler) Stop(passID id.PassID) {
	sch.mu.Lock()
	t := sch.timers[passID]
	delete(sch.timers, passID)
	sch.mu.Unlock()
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// StopAll cancels every timer and waits for them to drain. Called once at
// process shutdown.
func (sch *Scheduler) StopAll() {
	sch.mu.Lock()
	timers := sch.timers
	sch.timers = make(map[id.PassID]*timer)
	sch.mu.Unlock()

	for _, t := range timers {
		t.cancel()
	}
	for _, t := range timers {
		<-t.done
	}
}

// Active reports whether a timer is currently registered for the pass.
func (sch *Scheduler) Active(passID id.PassID) bool {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	return sch.timers[passID] != nil
}

func (sch *Scheduler) run(ctx context.Context, passID id.PassID, t *timer) {
	defer close(t.done)

	interval := sch.svc.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			// Bound each tick so a hung store call cannot stall the timer
			// goroutine past its own interval, which would also block Stop.
			tickCtx, cancel := context.WithTimeout(ctx, interval)
			_, err := sch.svc.Rotate(tickCtx, passID)
			cancel()
			if err != nil {
				if sch.handleRotateError(ctx, passID, err) {
					sch.deregister(passID, t)
					return
				}
			}
		}
	}
}

// handleRotateError decides whether the timer should self-terminate. A pass
// that has left the active state ends its timer; transient store trouble does
// not, the next tick retries.
func (sch *Scheduler) handleRotateError(ctx context.Context, passID id.PassID, err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}

	switch dErrors.CodeOf(err) {
	case dErrors.CodeExpired:
		sch.hub.Publish(notify.PassTopic(passID), notify.Event{
			Kind:   notify.EventExpired,
			PassID: passID.String(),
		})
		sch.log.InfoContext(ctx, "rotation timer ending, pass expired", "pass_id", passID)
		return true
	case dErrors.CodeAlreadyRedeemed, dErrors.CodeNotFound:
		sch.log.InfoContext(ctx, "rotation timer ending, pass left active state", "pass_id", passID)
		return true
	default:
		sch.log.WarnContext(ctx, "rotation tick failed, will retry", "pass_id", passID, "error", err)
		return false
	}
}

// deregister removes the timer entry, but only if it is still ours: a
// concurrent Start may already have replaced it.
func (sch *Scheduler) deregister(passID id.PassID, t *timer) {
	sch.mu.Lock()
	if sch.timers[passID] == t {
		delete(sch.timers, passID)
	}
	sch.mu.Unlock()
}
