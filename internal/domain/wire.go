package domain

import (
	"encoding/json"
	"strings"
)

// Table names watched by the change feed.
const (
	TableNotifications    = "notifications"
	TablePresenceSettings = "presence_settings"
)

// Filter restricts a feed subscription to rows whose column equals value.
type Filter struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// FeedTopic returns the wire topic for a table's change feed.
func FeedTopic(table string) string {
	return "feed:" + table
}

// PresenceTopic returns the wire topic for a presence room.
func PresenceTopic(room string) string {
	return "presence:" + room
}

// FeedTable extracts the table from a feed topic, ok=false if the topic is
// not a feed topic.
func FeedTable(topic string) (string, bool) {
	return strings.CutPrefix(topic, "feed:")
}

// IsPresenceTopic reports whether the topic names a presence room.
func IsPresenceTopic(topic string) bool {
	return strings.HasPrefix(topic, "presence:")
}

// ClientFrame is a client -> server websocket message.
type ClientFrame struct {
	Action  string          `json:"action"` // subscribe | unsubscribe | track | untrack
	Topic   string          `json:"topic"`
	Filter  *Filter         `json:"filter,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerFrame is a server -> client websocket message: either a row-change
// event on a feed topic or a sync/join/leave on a presence topic.
type ServerFrame struct {
	Topic    string                       `json:"topic"`
	Event    string                       `json:"event"` // INSERT | UPDATE | DELETE | sync | join | leave
	New      json.RawMessage              `json:"new,omitempty"`
	Old      json.RawMessage              `json:"old,omitempty"`
	State    map[string][]json.RawMessage `json:"state,omitempty"`
	Key      string                       `json:"key,omitempty"`
	Payloads []json.RawMessage            `json:"payloads,omitempty"`
}
