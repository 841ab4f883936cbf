package client

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"collab-realtime/internal/domain"
)

// Presence is a presence channel as consumed by the tracker. Satisfied by
// *realtime.PresenceChannel.
type Presence interface {
	Events() <-chan domain.PresenceEvent
	Track(payload interface{}) error
	Untrack() error
	Unsubscribe()
}

// SettingsAPI is the slice of the REST surface the tracker reads and
// mutates visibility settings through.
type SettingsAPI interface {
	ListPresenceSettings(ctx context.Context) ([]*domain.PresenceSettings, error)
	UpsertPresenceSettings(ctx context.Context, patch domain.SettingsPatch) (*domain.PresenceSettings, error)
}

// PresenceTracker merges periodic presence snapshots with the persisted
// visibility settings into the externally visible "who is online" set.
// The two underlying feeds have no cross-channel ordering guarantee, so
// VisibleUsers is a pure projection safe to compute from any interleaving.
type PresenceTracker struct {
	api          SettingsAPI
	settingsFeed Feed
	presence     Presence
	userID       string
	displayName  string

	mu              sync.Mutex
	online          map[string]domain.PresenceRecord
	settings        map[string]domain.PresenceSettings
	settingsStarted bool
	connected       bool

	closeOnce sync.Once
}

func NewPresenceTracker(api SettingsAPI, settingsFeed Feed, presence Presence, userID, displayName string) *PresenceTracker {
	return &PresenceTracker{
		api:          api,
		settingsFeed: settingsFeed,
		presence:     presence,
		userID:       userID,
		displayName:  displayName,
		online:       make(map[string]domain.PresenceRecord),
		settings:     make(map[string]domain.PresenceSettings),
	}
}

// LoadSettings bulk-fetches every visibility row and starts consuming the
// settings feed to keep them current.
func (t *PresenceTracker) LoadSettings(ctx context.Context) error {
	items, err := t.api.ListPresenceSettings(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.settings = make(map[string]domain.PresenceSettings, len(items))
	for _, s := range items {
		t.settings[s.UserID] = *s
	}
	start := !t.settingsStarted
	t.settingsStarted = true
	t.mu.Unlock()

	if start {
		go func() {
			for ev := range t.settingsFeed.Events() {
				t.applySettings(ev)
			}
		}()
	}
	return nil
}

func (t *PresenceTracker) applySettings(ev domain.ChangeEvent) {
	var row domain.PresenceSettings
	switch ev.Kind {
	case domain.EventInsert, domain.EventUpdate:
		if err := ev.DecodeRow(&row); err != nil {
			log.Printf("[PRESENCE] bad %s settings row: %v", ev.Kind, err)
			return
		}
	case domain.EventDelete:
		if err := ev.DecodeOldRow(&row); err != nil {
			log.Printf("[PRESENCE] bad %s settings row: %v", ev.Kind, err)
			return
		}
	}

	t.mu.Lock()
	prevShow := t.showPresenceLocked(row.UserID)
	switch ev.Kind {
	case domain.EventInsert, domain.EventUpdate:
		t.settings[row.UserID] = row
	case domain.EventDelete:
		delete(t.settings, row.UserID)
	}
	newShow := t.showPresenceLocked(row.UserID)
	own := row.UserID == t.userID && t.connected
	t.mu.Unlock()

	if !own || prevShow == newShow {
		return
	}
	// own visibility flipped: start or stop broadcasting. Turning it off
	// relies on the next snapshot naturally omitting us; the lag is
	// bounded by the hub's sync interval.
	if newShow {
		t.broadcast()
	} else if err := t.presence.Untrack(); err != nil {
		log.Printf("[PRESENCE] untrack failed: %v", err)
	}
}

// showPresenceLocked applies the default: a user with no settings row is
// visible. Callers hold t.mu.
func (t *PresenceTracker) showPresenceLocked(userID string) bool {
	s, ok := t.settings[userID]
	if !ok {
		return true
	}
	return s.ShowPresence
}

func (t *PresenceTracker) showPresence(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.showPresenceLocked(userID)
}

// Connect starts consuming the presence channel and, if the current user's
// settings allow it, broadcasts their own presence. Broadcast failures are
// logged, not surfaced: the projection just goes stale until the transport
// recovers.
func (t *PresenceTracker) Connect() {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return
	}
	t.connected = true
	show := t.showPresenceLocked(t.userID)
	t.mu.Unlock()

	go func() {
		for ev := range t.presence.Events() {
			t.applyPresence(ev)
		}
	}()

	if show {
		t.broadcast()
	}
}

func (t *PresenceTracker) applyPresence(ev domain.PresenceEvent) {
	switch ev.Kind {
	case domain.PresenceSync:
		// full snapshot replaces the online map wholesale; take the first
		// payload per key (multiple tabs/sessions for the same user)
		online := make(map[string]domain.PresenceRecord, len(ev.State))
		for key, payloads := range ev.State {
			if len(payloads) == 0 {
				continue
			}
			var rec domain.PresenceRecord
			if err := json.Unmarshal(payloads[0], &rec); err != nil {
				log.Printf("[PRESENCE] bad payload for %s: %v", key, err)
				continue
			}
			online[key] = rec
		}
		t.mu.Lock()
		t.online = online
		t.mu.Unlock()

	case domain.PresenceJoin, domain.PresenceLeave:
		// informational only; state changes are driven by the next sync
	}
}

// broadcast tracks the current user's payload on the presence channel.
func (t *PresenceTracker) broadcast() {
	t.mu.Lock()
	status := "online"
	if s, ok := t.settings[t.userID]; ok && s.CustomStatus != nil && *s.CustomStatus != "" {
		status = *s.CustomStatus
	}
	rec := domain.PresenceRecord{
		UserID:      t.userID,
		DisplayName: t.displayName,
		OnlineAt:    time.Now(),
		Status:      status,
	}
	t.mu.Unlock()

	if err := t.presence.Track(rec); err != nil {
		log.Printf("[PRESENCE] broadcast failed: %v", err)
	}
}

// UpdateSettings upserts the current user's row. Local state is reconciled
// by the subsequent settings feed event, which also triggers the
// re-broadcast or retraction when show_presence flips.
func (t *PresenceTracker) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) error {
	_, err := t.api.UpsertPresenceSettings(ctx, patch)
	return err
}

// VisibleUsers projects the online set through the visibility settings:
// a record is included iff its user's show_presence is true (default true
// when no row exists). Recomputed on demand, safe under any interleaving
// of settings events and snapshots.
func (t *PresenceTracker) VisibleUsers() []domain.PresenceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.PresenceRecord, 0, len(t.online))
	for userID, rec := range t.online {
		if !t.showPresenceLocked(userID) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Close retracts the local broadcast and tears both subscriptions down.
// Safe to call more than once.
func (t *PresenceTracker) Close() {
	t.closeOnce.Do(func() {
		if err := t.presence.Untrack(); err != nil {
			log.Printf("[PRESENCE] untrack on close failed: %v", err)
		}
		t.presence.Unsubscribe()
		t.settingsFeed.Unsubscribe()
	})
}
