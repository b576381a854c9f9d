/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package events carries the scheduler's in-process event stream. Every
// externally observable state change is published here; the audit log, the
// external event bus, and the websocket feed all hang off this bus.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates event categories.
type EventType string

const (
	EventRequestCreated   EventType = "request.created"
	EventRequestRejected  EventType = "request.rejected"
	EventRequestClaimed   EventType = "request.claimed"
	EventRequestExecuted  EventType = "request.executed"
	EventRequestCancelled EventType = "request.cancelled"
)

// Payload is the event detail map serialized to external consumers.
type Payload map[string]any

// Event is one emitted state change. RequestID is uuid.Nil for rejection
// events, which never created a request.
type Event struct {
	Type      EventType `json:"type"`
	RequestID uuid.UUID `json:"request_id"`
	At        time.Time `json:"at"`
	Payload   Payload   `json:"payload"`
}

// Subscriber receives events.
type Subscriber chan Event

// Bus implements a simple in-process pubsub. Publishing never blocks: a
// subscriber that cannot keep up drops events rather than stalling a
// state transition.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
	taps []Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Tap registers a subscriber that receives every event regardless of
// type. Used by the audit log, the external bus mirror, and websocket
// feeds.
func (b *Bus) Tap() Subscriber {
	ch := make(Subscriber, 64)
	b.mu.Lock()
	b.taps = append(b.taps, ch)
	b.mu.Unlock()
	return ch
}

// Publish sends the event to type subscribers and taps.
func (b *Bus) Publish(eventType EventType, requestID uuid.UUID, payload Payload) {
	evt := Event{Type: eventType, RequestID: requestID, At: time.Now().UTC(), Payload: payload}

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	taps := append([]Subscriber(nil), b.taps...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub <- evt:
		default:
		}
	}
	for _, tap := range taps {
		select {
		case tap <- evt:
		default:
		}
	}
}

// Unsubscribe removes and closes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
	for i, candidate := range b.taps {
		if candidate == sub {
			b.taps = append(b.taps[:i], b.taps[i+1:]...)
			close(sub)
			return
		}
	}
}

// Untap removes and closes a tap registered with Tap.
func (b *Bus) Untap(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, candidate := range b.taps {
		if candidate == sub {
			b.taps = append(b.taps[:i], b.taps[i+1:]...)
			close(sub)
			return
		}
	}
}
