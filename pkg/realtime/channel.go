package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"collab-realtime/internal/domain"
)

// Channel is one change-feed subscription. Events arrive in per-topic
// order; delivery is at-least-once, so consumers apply them idempotently.
type Channel struct {
	client *Client
	topic  string

	// sendMu serializes sends against the close so a frame routed while
	// the consumer unsubscribes can never hit a closed channel.
	sendMu sync.Mutex
	closed bool
	events chan domain.ChangeEvent
}

// Events returns the delivery channel. It is closed on Unsubscribe and
// when the transport drops; a closed channel means the consumer must
// resubscribe and refetch.
func (ch *Channel) Events() <-chan domain.ChangeEvent {
	return ch.events
}

// send delivers an event without blocking. Reports false if the channel
// is closed or the consumer's buffer is full.
func (ch *Channel) send(ev domain.ChangeEvent) bool {
	ch.sendMu.Lock()
	defer ch.sendMu.Unlock()
	if ch.closed {
		return false
	}
	select {
	case ch.events <- ev:
		return true
	default:
		return false
	}
}

// Unsubscribe tears the subscription down. Safe to call more than once.
func (ch *Channel) Unsubscribe() {
	if ch.client.detachFeed(ch.topic) == nil {
		return
	}
	_ = ch.client.writeFrame(&domain.ClientFrame{Action: "unsubscribe", Topic: ch.topic})
	ch.closeEvents()
}

func (ch *Channel) closeEvents() {
	ch.sendMu.Lock()
	defer ch.sendMu.Unlock()
	if ch.closed {
		return
	}
	ch.closed = true
	close(ch.events)
}

// PresenceChannel is a bidirectional ephemeral channel: Track broadcasts
// the local payload, Events delivers snapshots and join/leave signals for
// all participants.
type PresenceChannel struct {
	client *Client
	topic  string

	sendMu sync.Mutex
	closed bool
	events chan domain.PresenceEvent
}

func (ch *PresenceChannel) Events() <-chan domain.PresenceEvent {
	return ch.events
}

func (ch *PresenceChannel) send(ev domain.PresenceEvent) bool {
	ch.sendMu.Lock()
	defer ch.sendMu.Unlock()
	if ch.closed {
		return false
	}
	select {
	case ch.events <- ev:
		return true
	default:
		return false
	}
}

// Track broadcasts the local presence payload. The payload exists only
// while the connection is alive; it is retracted by Untrack or disconnect.
func (ch *PresenceChannel) Track(payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: encode presence payload: %w", err)
	}
	return ch.client.writeFrame(&domain.ClientFrame{Action: "track", Topic: ch.topic, Payload: raw})
}

// Untrack stops broadcasting. The local user drops out of the next
// snapshot.
func (ch *PresenceChannel) Untrack() error {
	return ch.client.writeFrame(&domain.ClientFrame{Action: "untrack", Topic: ch.topic})
}

// Unsubscribe tears the subscription down. Safe to call more than once.
func (ch *PresenceChannel) Unsubscribe() {
	if ch.client.detachPresence(ch.topic) == nil {
		return
	}
	_ = ch.client.writeFrame(&domain.ClientFrame{Action: "unsubscribe", Topic: ch.topic})
	ch.closeEvents()
}

func (ch *PresenceChannel) closeEvents() {
	ch.sendMu.Lock()
	defer ch.sendMu.Unlock()
	if ch.closed {
		return
	}
	ch.closed = true
	close(ch.events)
}
