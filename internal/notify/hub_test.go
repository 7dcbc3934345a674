package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "github.com/musicamatics/queueskip/pkg/domain"
)

func TestPublishReachesTopicSubscribers(t *testing.T) {
	hub := NewHub()
	passID := id.NewPassID()
	topic := PassTopic(passID)

	ch, cancel := hub.Subscribe(topic)
	defer cancel()

	hub.Publish(topic, Event{Kind: EventRotated, PassID: passID.String(), NewCode: "abc"})

	select {
	case ev := <-ch:
		assert.Equal(t, EventRotated, ev.Kind)
		assert.Equal(t, "abc", ev.NewCode)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishDoesNotCrossTopics(t *testing.T) {
	hub := NewHub()
	chA, cancelA := hub.Subscribe("pass-a")
	defer cancelA()

	hub.Publish("pass-b", Event{Kind: EventRedeemed, PassID: "b"})

	select {
	case ev := <-chA:
		t.Fatalf("unexpected delivery: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	hub := NewHub()
	hub.Publish("pass-x", Event{Kind: EventRedeemed, PassID: "x"})

	ch, cancel := hub.Subscribe("pass-x")
	defer cancel()

	select {
	case ev := <-ch:
		t.Fatalf("late subscriber must not replay: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("pass-x")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			hub.Publish("pass-x", Event{Kind: EventRotated, PassID: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// The buffer holds at most subscriberBuffer events; the rest were dropped.
	assert.Len(t, ch, subscriberBuffer)
}

func TestCancelIsIdempotent(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe("pass-x")

	cancel()
	require.NotPanics(t, cancel)
	assert.Equal(t, 0, hub.SubscriberCount("pass-x"))
}

func TestVenueTopicFanout(t *testing.T) {
	hub := NewHub()
	venueID := id.NewVenueID()

	ch1, cancel1 := hub.Subscribe(VenueTopic(venueID))
	defer cancel1()
	ch2, cancel2 := hub.Subscribe(VenueTopic(venueID))
	defer cancel2()

	hub.Publish(VenueTopic(venueID), Event{Kind: EventTransferred, PassID: "p", NewPassID: "q"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "q", ev.NewPassID)
		case <-time.After(time.Second):
			t.Fatal("venue subscriber missed event")
		}
	}
}
