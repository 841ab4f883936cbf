package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"collab-realtime/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// Conn wraps websocket.Conn with subscription state
type Conn struct {
	ws     *websocket.Conn
	UserID string

	writeMu sync.Mutex

	// guarded by the owning Hub's mu
	lastSeen time.Time
	topics   map[string]*domain.Filter     // subscribed topics, nil filter = unfiltered
	tracked  map[string]json.RawMessage    // presence topic -> broadcast payload
}

func (c *Conn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// Hub fans change events and presence state out to subscribed websocket
// connections. With a redis client it bridges events across instances;
// without one everything stays in-process.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}

	rdb          *redis.Client
	syncInterval time.Duration
	pingInterval time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func New(rdb *redis.Client, syncInterval, pingInterval time.Duration) *Hub {
	return &Hub{
		conns:        make(map[*Conn]struct{}),
		rdb:          rdb,
		syncInterval: syncInterval,
		pingInterval: pingInterval,
		done:         make(chan struct{}),
	}
}

// Add registers a connection for a user
func (h *Hub) Add(userID string, ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:       ws,
		UserID:   userID,
		lastSeen: time.Now(),
		topics:   make(map[string]*domain.Filter),
		tracked:  make(map[string]json.RawMessage),
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()

	log.Printf("[HUB] connected: user=%s (total=%d)", userID, total)
	return c
}

// Remove disconnects a connection and retracts its presence from every
// room it was tracked in.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	var left []string
	for topic := range c.tracked {
		left = append(left, topic)
	}
	h.mu.Unlock()

	_ = c.ws.Close()
	log.Printf("[HUB] disconnected: user=%s", c.UserID)

	for _, topic := range left {
		h.broadcastPresence(topic, "leave", c.UserID)
		h.broadcastSync(topic)
	}
}

// Touch refreshes the liveness timestamp, called from the pong handler.
func (h *Hub) Touch(c *Conn) {
	h.mu.Lock()
	c.lastSeen = time.Now()
	h.mu.Unlock()
}

// Subscribe registers a connection on a topic. Subscribers of a presence
// topic immediately get the current snapshot so they never start from a
// blank state.
func (h *Hub) Subscribe(c *Conn, topic string, filter *domain.Filter) {
	h.mu.Lock()
	c.topics[topic] = filter
	h.mu.Unlock()

	if domain.IsPresenceTopic(topic) {
		h.sendSync(c, topic)
	}
}

// Unsubscribe removes a connection from a topic.
func (h *Hub) Unsubscribe(c *Conn, topic string) {
	h.mu.Lock()
	delete(c.topics, topic)
	delete(c.tracked, topic)
	h.mu.Unlock()
}

// PublishChange pushes a row-change event to every subscriber of the
// table's feed topic. Delivery is at-least-once: transport retries may
// duplicate a frame, consumers must apply events idempotently.
func (h *Hub) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	frame := &domain.ServerFrame{
		Topic: domain.FeedTopic(ev.Table),
		Event: ev.Kind.String(),
		New:   ev.Row,
		Old:   ev.OldRow,
	}

	if h.rdb != nil {
		// The bridge loop delivers it back to every instance, this one
		// included, so no local broadcast here.
		return h.publishRedis(ctx, frame)
	}

	h.broadcastFrame(frame)
	return nil
}

// broadcastFrame writes a frame to every connection subscribed to its topic
// whose filter matches.
func (h *Hub) broadcastFrame(frame *domain.ServerFrame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		filter, ok := c.topics[frame.Topic]
		if !ok {
			continue
		}
		if !filterMatches(filter, frame) {
			continue
		}
		if err := c.writeJSON(frame); err != nil {
			log.Printf("[HUB] failed send to %s: %v", c.UserID, err)
			go h.Remove(c)
		}
	}
}

// filterMatches applies a subscription filter to a change frame by
// comparing the filter column in the event row. Delete events only carry
// the old row.
func filterMatches(filter *domain.Filter, frame *domain.ServerFrame) bool {
	if filter == nil {
		return true
	}
	raw := frame.New
	if raw == nil {
		raw = frame.Old
	}
	if raw == nil {
		return false
	}
	var row map[string]interface{}
	if err := json.Unmarshal(raw, &row); err != nil {
		return false
	}
	v, ok := row[filter.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == filter.Value
}

// Run drives the hub's background loops: the redis bridge, periodic
// presence snapshots, and connection heartbeats. Blocks until ctx is done
// or Close is called.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.runBridge(ctx)
	}

	syncTicker := time.NewTicker(h.syncInterval)
	defer syncTicker.Stop()
	pingTicker := time.NewTicker(h.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-syncTicker.C:
			for _, topic := range h.activePresenceTopics() {
				h.broadcastSync(topic)
			}
		case <-pingTicker.C:
			h.heartbeat()
		}
	}
}

// heartbeat pings all connections and drops the ones that stopped
// answering.
func (h *Hub) heartbeat() {
	h.mu.RLock()
	for c := range h.conns {
		if time.Since(c.lastSeen) > 3*h.pingInterval {
			go h.Remove(c)
			continue
		}
		_ = c.ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
	}
	h.mu.RUnlock()
}

// Close tears the hub down: stops Run and closes every connection.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.Remove(c)
	}
}
