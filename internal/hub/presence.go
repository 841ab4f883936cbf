package hub

import (
	"encoding/json"
	"log"

	"collab-realtime/internal/domain"
)

// Track stores a connection's presence payload for a room and announces it.
// Tracking implies subscribing, so a client that only broadcasts still
// receives snapshots.
func (h *Hub) Track(c *Conn, topic string, payload json.RawMessage) {
	h.mu.Lock()
	if _, ok := c.topics[topic]; !ok {
		c.topics[topic] = nil
	}
	c.tracked[topic] = payload
	h.mu.Unlock()

	h.broadcastPresence(topic, "join", c.UserID)
	h.broadcastSync(topic)
}

// Untrack stops broadcasting a connection's presence in a room. The user
// drops out of the next snapshot; there is no explicit retraction beyond
// that.
func (h *Hub) Untrack(c *Conn, topic string) {
	h.mu.Lock()
	_, had := c.tracked[topic]
	delete(c.tracked, topic)
	h.mu.Unlock()

	if !had {
		return
	}
	h.broadcastPresence(topic, "leave", c.UserID)
	h.broadcastSync(topic)
}

// presenceState snapshots who is currently tracked in a room, keyed by
// user ID. Multiple connections for the same user (tabs, devices) each
// contribute a payload under the same key.
func (h *Hub) presenceState(topic string) map[string][]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	state := make(map[string][]json.RawMessage)
	for c := range h.conns {
		payload, ok := c.tracked[topic]
		if !ok {
			continue
		}
		state[c.UserID] = append(state[c.UserID], payload)
	}
	return state
}

// broadcastSync sends the full replace-all snapshot to every subscriber of
// a presence room.
func (h *Hub) broadcastSync(topic string) {
	frame := &domain.ServerFrame{
		Topic: topic,
		Event: "sync",
		State: h.presenceState(topic),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if _, ok := c.topics[topic]; !ok {
			continue
		}
		if err := c.writeJSON(frame); err != nil {
			log.Printf("[HUB] failed presence sync to %s: %v", c.UserID, err)
			go h.Remove(c)
		}
	}
}

// sendSync delivers the current snapshot to a single connection, used right
// after it subscribes to a presence room.
func (h *Hub) sendSync(c *Conn, topic string) {
	frame := &domain.ServerFrame{
		Topic: topic,
		Event: "sync",
		State: h.presenceState(topic),
	}
	if err := c.writeJSON(frame); err != nil {
		log.Printf("[HUB] failed presence sync to %s: %v", c.UserID, err)
		go h.Remove(c)
	}
}

// broadcastPresence sends an informational join/leave signal. State changes
// are carried by the sync that follows, not by these.
func (h *Hub) broadcastPresence(topic, event, key string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var payloads []json.RawMessage
	for c := range h.conns {
		if c.UserID != key {
			continue
		}
		if p, ok := c.tracked[topic]; ok {
			payloads = append(payloads, p)
		}
	}

	frame := &domain.ServerFrame{
		Topic:    topic,
		Event:    event,
		Key:      key,
		Payloads: payloads,
	}
	for c := range h.conns {
		if _, ok := c.topics[topic]; !ok {
			continue
		}
		if err := c.writeJSON(frame); err != nil {
			log.Printf("[HUB] failed presence %s to %s: %v", event, c.UserID, err)
			go h.Remove(c)
		}
	}
}

// activePresenceTopics lists the rooms that currently have at least one
// tracked connection.
func (h *Hub) activePresenceTopics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	var topics []string
	for c := range h.conns {
		for topic := range c.tracked {
			if _, ok := seen[topic]; ok {
				continue
			}
			seen[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}
	return topics
}
