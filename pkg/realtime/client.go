package realtime

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"collab-realtime/internal/domain"
	"collab-realtime/pkg/xerrors"

	"github.com/gorilla/websocket"
)

// eventBuffer bounds each subscription's delivery channel. The consumer is
// a single apply loop; if it falls this far behind, frames are dropped and
// the consumer resynchronizes with a full refetch.
const eventBuffer = 64

// Client multiplexes change-feed and presence subscriptions over one
// websocket connection to the realtime service.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	feeds     map[string]*Channel
	presences map[string]*PresenceChannel
	closed    bool

	closeOnce sync.Once
}

// Dial connects to the realtime websocket endpoint and starts the read
// loop. The caller must Close the client when the session ends.
func Dial(ctx context.Context, wsURL, userID string) (*Client, error) {
	header := http.Header{}
	header.Set("X-User-ID", userID)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial %s: %w", wsURL, err)
	}

	c := &Client{
		conn:      conn,
		feeds:     make(map[string]*Channel),
		presences: make(map[string]*PresenceChannel),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) writeFrame(frame *domain.ClientFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

// Feed opens a change-feed subscription for one table, optionally filtered.
// One subscription per table topic per client.
func (c *Client) Feed(table string, filter *domain.Filter) (*Channel, error) {
	topic := domain.FeedTopic(table)
	ch := &Channel{
		client: c,
		topic:  topic,
		events: make(chan domain.ChangeEvent, eventBuffer),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, xerrors.ErrChannelClosed
	}
	if _, exists := c.feeds[topic]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("realtime: already subscribed to %s", topic)
	}
	c.feeds[topic] = ch
	c.mu.Unlock()

	if err := c.writeFrame(&domain.ClientFrame{Action: "subscribe", Topic: topic, Filter: filter}); err != nil {
		c.detachFeed(topic)
		return nil, fmt.Errorf("realtime: subscribe %s: %w", topic, err)
	}
	return ch, nil
}

// Presence opens a presence channel for a room. The channel receives
// snapshots immediately; the local client only appears to others once it
// calls Track.
func (c *Client) Presence(room string) (*PresenceChannel, error) {
	topic := domain.PresenceTopic(room)
	ch := &PresenceChannel{
		client: c,
		topic:  topic,
		events: make(chan domain.PresenceEvent, eventBuffer),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, xerrors.ErrChannelClosed
	}
	if _, exists := c.presences[topic]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("realtime: already subscribed to %s", topic)
	}
	c.presences[topic] = ch
	c.mu.Unlock()

	if err := c.writeFrame(&domain.ClientFrame{Action: "subscribe", Topic: topic}); err != nil {
		c.detachPresence(topic)
		return nil, fmt.Errorf("realtime: subscribe %s: %w", topic, err)
	}
	return ch, nil
}

// readLoop routes incoming frames to their subscription channels until the
// transport drops, then closes every channel so consumers know to
// resubscribe and refetch.
func (c *Client) readLoop() {
	for {
		var frame domain.ServerFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if !c.isClosed() {
				log.Printf("[REALTIME] transport closed: %v", err)
			}
			break
		}
		c.route(&frame)
	}
	c.shutdown()
}

func (c *Client) route(frame *domain.ServerFrame) {
	if table, ok := domain.FeedTable(frame.Topic); ok {
		kind, err := domain.ParseEventKind(frame.Event)
		if err != nil {
			log.Printf("[REALTIME] bad feed frame on %s: %v", frame.Topic, err)
			return
		}
		c.mu.Lock()
		ch := c.feeds[frame.Topic]
		c.mu.Unlock()
		if ch == nil {
			return
		}
		ev := domain.ChangeEvent{Table: table, Kind: kind, Row: frame.New, OldRow: frame.Old}
		if !ch.send(ev) {
			log.Printf("[REALTIME] dropped %s event on %s", frame.Event, frame.Topic)
		}
		return
	}

	if domain.IsPresenceTopic(frame.Topic) {
		var ev domain.PresenceEvent
		switch frame.Event {
		case "sync":
			ev = domain.PresenceEvent{Kind: domain.PresenceSync, State: frame.State}
		case "join":
			ev = domain.PresenceEvent{Kind: domain.PresenceJoin, Key: frame.Key, Payloads: frame.Payloads}
		case "leave":
			ev = domain.PresenceEvent{Kind: domain.PresenceLeave, Key: frame.Key, Payloads: frame.Payloads}
		default:
			log.Printf("[REALTIME] bad presence frame on %s: %q", frame.Topic, frame.Event)
			return
		}
		c.mu.Lock()
		ch := c.presences[frame.Topic]
		c.mu.Unlock()
		if ch == nil {
			return
		}
		if !ch.send(ev) {
			log.Printf("[REALTIME] dropped presence %s on %s", frame.Event, frame.Topic)
		}
	}
}

func (c *Client) detachFeed(topic string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.feeds[topic]
	delete(c.feeds, topic)
	return ch
}

func (c *Client) detachPresence(topic string) *PresenceChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.presences[topic]
	delete(c.presences, topic)
	return ch
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// shutdown detaches and closes every subscription channel exactly once.
func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	feeds := make([]*Channel, 0, len(c.feeds))
	for _, ch := range c.feeds {
		feeds = append(feeds, ch)
	}
	c.feeds = make(map[string]*Channel)
	presences := make([]*PresenceChannel, 0, len(c.presences))
	for _, ch := range c.presences {
		presences = append(presences, ch)
	}
	c.presences = make(map[string]*PresenceChannel)
	c.mu.Unlock()

	for _, ch := range feeds {
		ch.closeEvents()
	}
	for _, ch := range presences {
		ch.closeEvents()
	}
}

// Close tears the connection down. All subscription channels are closed;
// a new session must re-dial and re-run its initial fetches.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}
