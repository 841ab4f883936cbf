package domain

import (
	"encoding/json"
	"fmt"
)

// EventKind tags a row-change event. Handlers switch on it exhaustively
// instead of string-matching an event type field.
type EventKind int

const (
	EventInsert EventKind = iota
	EventUpdate
	EventDelete
)

func (k EventKind) String() string {
	switch k {
	case EventInsert:
		return "INSERT"
	case EventUpdate:
		return "UPDATE"
	case EventDelete:
		return "DELETE"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ParseEventKind maps a wire event type string to its EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "INSERT":
		return EventInsert, nil
	case "UPDATE":
		return EventUpdate, nil
	case "DELETE":
		return EventDelete, nil
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

// ChangeEvent is one row-change on a change feed. Row holds the new row for
// Insert/Update, OldRow the previous row for Update/Delete. Rows stay raw so
// each consumer decodes into its own table type.
type ChangeEvent struct {
	Table  string
	Kind   EventKind
	Row    json.RawMessage
	OldRow json.RawMessage
}

// DecodeRow unmarshals the new row into v.
func (e ChangeEvent) DecodeRow(v interface{}) error {
	if e.Row == nil {
		return fmt.Errorf("change event has no new row")
	}
	return json.Unmarshal(e.Row, v)
}

// DecodeOldRow unmarshals the previous row into v.
func (e ChangeEvent) DecodeOldRow(v interface{}) error {
	if e.OldRow == nil {
		return fmt.Errorf("change event has no old row")
	}
	return json.Unmarshal(e.OldRow, v)
}

// PresenceEventKind tags an event on a presence channel.
type PresenceEventKind int

const (
	// PresenceSync carries the full replace-all state.
	PresenceSync PresenceEventKind = iota
	// PresenceJoin and PresenceLeave are informational; consumers wait for
	// the next sync instead of applying them incrementally.
	PresenceJoin
	PresenceLeave
)

// PresenceEvent is one event on a presence channel. State is set for sync
// events and maps a presence key to the payloads broadcast under it (more
// than one when the same user has multiple tabs or sessions).
type PresenceEvent struct {
	Kind     PresenceEventKind
	State    map[string][]json.RawMessage
	Key      string
	Payloads []json.RawMessage
}
