package pubsub

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/wote-dev/simplr-sub001/domain"
)

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := New(logger, 4)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(domain.Event{Type: domain.TaskCreated, Profile: "personal"})

	select {
	case ev := <-ch:
		if ev.Type != domain.TaskCreated {
			t.Fatalf("unexpected event type: %s", ev.Type)
		}
		if ev.Profile != "personal" {
			t.Fatalf("unexpected profile: %s", ev.Profile)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event within 1s")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := New(logger, 4)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()
	cancel() // second cancel must be harmless

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}

	// Publishing after cancel must not panic or deliver.
	bus.Publish(domain.Event{Type: domain.TaskDeleted})
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	logger, hook := test.NewNullLogger()
	bus := New(logger, 1)
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.Publish(domain.Event{Type: domain.TaskCreated})
		bus.Publish(domain.Event{Type: domain.TaskUpdated})
		bus.Publish(domain.Event{Type: domain.TaskDeleted})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if bus.Dropped() != 2 {
		t.Fatalf("expected 2 dropped deliveries, got %d", bus.Dropped())
	}
	if hook.LastEntry() == nil {
		t.Fatal("expected a warning for dropped events")
	}
}

func TestCloseTerminatesSubscribers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := New(logger, 2)

	ch, _ := bus.Subscribe()
	bus.Close()
	bus.Close() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("expected subscriber channel closed")
	}

	// Subscribing after close yields an already-closed channel.
	late, cancel := bus.Subscribe()
	cancel()
	if _, ok := <-late; ok {
		t.Fatal("expected closed channel for late subscriber")
	}
}
