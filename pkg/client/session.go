package client

import (
	"context"
	"fmt"

	"collab-realtime/internal/domain"
	"collab-realtime/pkg/realtime"
)

// Session owns one user's realtime state: the notification store, the
// presence tracker, and the sync coordinator, all over a single websocket
// connection. It is an explicit service object with an init/teardown
// lifecycle, never a process-wide singleton, so multiple sessions can
// coexist in one process (and in tests).
type Session struct {
	api *API
	rt  *realtime.Client

	Notifications *NotificationStore
	Presence      *PresenceTracker
	Coordinator   *SyncCoordinator
}

// SessionConfig names the endpoints and identity for one session.
type SessionConfig struct {
	BaseURL     string // REST base, e.g. "http://localhost:8013"
	WSURL       string // websocket endpoint, e.g. "ws://localhost:8013/api/v1/ws"
	UserID      string
	DisplayName string
	Room        string // presence room, e.g. "portal"
}

// NewSession dials the realtime endpoint, seeds the notification store,
// loads visibility settings, and joins the presence room. On any failure
// everything opened so far is torn down.
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	api := NewAPI(cfg.BaseURL, cfg.UserID)

	rt, err := realtime.Dial(ctx, cfg.WSURL, cfg.UserID)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*Session, error) {
		_ = rt.Close()
		return nil, err
	}

	notifFeed, err := rt.Feed(domain.TableNotifications, nil)
	if err != nil {
		return fail(err)
	}
	store := NewNotificationStore(api, notifFeed, cfg.UserID)
	if err := store.Initialize(ctx); err != nil {
		return fail(fmt.Errorf("session: initialize notifications: %w", err))
	}

	settingsFeed, err := rt.Feed(domain.TablePresenceSettings, nil)
	if err != nil {
		return fail(err)
	}
	presenceCh, err := rt.Presence(cfg.Room)
	if err != nil {
		return fail(err)
	}
	tracker := NewPresenceTracker(api, settingsFeed, presenceCh, cfg.UserID, cfg.DisplayName)
	if err := tracker.LoadSettings(ctx); err != nil {
		return fail(fmt.Errorf("session: load presence settings: %w", err))
	}
	tracker.Connect()

	coordinator := NewSyncCoordinator(func(table string) (Feed, error) {
		return rt.Feed(table, nil)
	})

	return &Session{
		api:           api,
		rt:            rt,
		Notifications: store,
		Presence:      tracker,
		Coordinator:   coordinator,
	}, nil
}

// API exposes the session's request/response client for the plain CRUD
// collaborators outside this subsystem.
func (s *Session) API() *API {
	return s.api
}

// Close tears the whole session down: presence retraction, all feed
// subscriptions, then the transport. A new session must be created (and
// re-initialized) to resume.
func (s *Session) Close() {
	s.Coordinator.Close()
	s.Presence.Close()
	s.Notifications.Close()
	_ = s.rt.Close()
}
