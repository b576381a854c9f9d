/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"testing"

	"github.com/google/uuid"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventRequestCreated)
	id := uuid.New()

	bus.Publish(EventRequestCreated, id, Payload{"bucket": int64(768)})
	bus.Publish(EventRequestClaimed, uuid.New(), nil)

	evt := <-sub
	if evt.Type != EventRequestCreated || evt.RequestID != id {
		t.Fatalf("got %+v, want created event for %s", evt, id)
	}
	select {
	case extra := <-sub:
		t.Fatalf("unexpected extra event: %+v", extra)
	default:
	}
}

func TestTapReceivesAllTypes(t *testing.T) {
	bus := NewBus()
	tap := bus.Tap()

	bus.Publish(EventRequestCreated, uuid.New(), nil)
	bus.Publish(EventRequestRejected, uuid.Nil, Payload{"requester": "owner"})
	bus.Publish(EventRequestExecuted, uuid.New(), nil)

	types := []EventType{EventRequestCreated, EventRequestRejected, EventRequestExecuted}
	for _, want := range types {
		evt := <-tap
		if evt.Type != want {
			t.Fatalf("tap received %s, want %s", evt.Type, want)
		}
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventRequestCreated)

	// Overfill the subscriber buffer; publish must drop, not stall.
	for i := 0; i < 100; i++ {
		bus.Publish(EventRequestCreated, uuid.New(), nil)
	}
	if len(sub) != cap(sub) {
		t.Fatalf("subscriber holds %d events, want full buffer %d", len(sub), cap(sub))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventRequestCancelled)
	bus.Unsubscribe(EventRequestCancelled, sub)
	if _, open := <-sub; open {
		t.Fatal("channel still open after unsubscribe")
	}
}

func TestUntapDeregistersFirehose(t *testing.T) {
	bus := NewBus()
	tap := bus.Tap()

	bus.Publish(EventRequestCreated, uuid.New(), nil)
	if evt := <-tap; evt.Type != EventRequestCreated {
		t.Fatalf("tap received %s before untap", evt.Type)
	}

	bus.Untap(tap)
	if _, open := <-tap; open {
		t.Fatal("channel still open after untap")
	}

	// A closed tap must be fully removed: publishing afterwards would
	// panic on a send to a closed channel if it were still registered.
	bus.Publish(EventRequestExecuted, uuid.New(), nil)

	// Untapping twice is a no-op, not a double close.
	bus.Untap(tap)
}
