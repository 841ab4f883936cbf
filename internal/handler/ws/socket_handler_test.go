package wshandler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/hub"
	"collab-realtime/internal/middleware"
	"collab-realtime/pkg/realtime"
)

func newTestServer(t *testing.T) (*hub.Hub, string) {
	t.Helper()

	h := hub.New(nil, 50*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		h.Close()
		cancel()
	})

	r := chi.NewRouter()
	r.With(middleware.RequireUser).Get("/ws", NewWSHandler(h).HandleRealtime)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, wsURL, userID string) *realtime.Client {
	t.Helper()
	c, err := realtime.Dial(context.Background(), wsURL, userID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func changeEvent(t *testing.T, kind domain.EventKind, n *domain.Notification) domain.ChangeEvent {
	t.Helper()
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	ev := domain.ChangeEvent{Table: domain.TableNotifications, Kind: kind}
	if kind == domain.EventDelete {
		ev.OldRow = raw
	} else {
		ev.Row = raw
	}
	return ev
}

func TestFeedEventReachesSubscriber(t *testing.T) {
	h, wsURL := newTestServer(t)
	c := dial(t, wsURL, "u1")

	feed, err := c.Feed(domain.TableNotifications, nil)
	require.NoError(t, err)

	n := &domain.Notification{ID: "n1", Title: "hello", Content: "world", Type: domain.Info}
	var got domain.ChangeEvent

	// the subscribe frame races the first publish; delivery is
	// at-least-once, so publishing again until a frame lands is exactly
	// what a real producer may do
	require.Eventually(t, func() bool {
		require.NoError(t, h.PublishChange(context.Background(), changeEvent(t, domain.EventInsert, n)))
		select {
		case ev, ok := <-feed.Events():
			if !ok {
				t.Fatal("feed closed unexpectedly")
			}
			got = ev
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, domain.TableNotifications, got.Table)
	assert.Equal(t, domain.EventInsert, got.Kind)

	var decoded domain.Notification
	require.NoError(t, got.DecodeRow(&decoded))
	assert.Equal(t, "n1", decoded.ID)
	assert.Equal(t, "hello", decoded.Title)
}

func TestFeedFilterRestrictsDelivery(t *testing.T) {
	h, wsURL := newTestServer(t)
	c := dial(t, wsURL, "u1")

	feed, err := c.Feed(domain.TableNotifications, &domain.Filter{Column: "target_user_id", Value: "u1"})
	require.NoError(t, err)

	target := "u1"
	matching := &domain.Notification{ID: "mine", Title: "t", Content: "c", TargetUserID: &target}
	other := "u2"
	filtered := &domain.Notification{ID: "theirs", Title: "t", Content: "c", TargetUserID: &other}

	var got domain.ChangeEvent
	require.Eventually(t, func() bool {
		require.NoError(t, h.PublishChange(context.Background(), changeEvent(t, domain.EventInsert, filtered)))
		require.NoError(t, h.PublishChange(context.Background(), changeEvent(t, domain.EventInsert, matching)))
		select {
		case ev := <-feed.Events():
			got = ev
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	var decoded domain.Notification
	require.NoError(t, got.DecodeRow(&decoded))
	assert.Equal(t, "mine", decoded.ID, "only rows matching the filter are delivered")
}

// latestSyncKeys drains the presence channel and reports the keys of the
// most recent snapshot, ok=false if none arrived yet.
func latestSyncKeys(p *realtime.PresenceChannel) (map[string]bool, bool) {
	var state map[string][]json.RawMessage
	seen := false
	for {
		select {
		case ev, ok := <-p.Events():
			if !ok {
				return nil, seen
			}
			if ev.Kind == domain.PresenceSync {
				state = ev.State
				seen = true
			}
		default:
			if !seen {
				return nil, false
			}
			keys := make(map[string]bool, len(state))
			for k := range state {
				keys[k] = true
			}
			return keys, true
		}
	}
}

func TestPresenceTrackAndSnapshot(t *testing.T) {
	_, wsURL := newTestServer(t)

	c1 := dial(t, wsURL, "u1")
	p1, err := c1.Presence("portal")
	require.NoError(t, err)

	// subscribing delivers the current (empty) snapshot immediately
	require.Eventually(t, func() bool {
		_, ok := latestSyncKeys(p1)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, p1.Track(domain.PresenceRecord{UserID: "u1", DisplayName: "User 1", OnlineAt: time.Now(), Status: "online"}))

	require.Eventually(t, func() bool {
		keys, ok := latestSyncKeys(p1)
		return ok && keys["u1"]
	}, 5*time.Second, 10*time.Millisecond)

	// second participant joins and becomes visible to the first
	c2 := dial(t, wsURL, "u2")
	p2, err := c2.Presence("portal")
	require.NoError(t, err)
	require.NoError(t, p2.Track(domain.PresenceRecord{UserID: "u2", DisplayName: "User 2", OnlineAt: time.Now(), Status: "online"}))

	require.Eventually(t, func() bool {
		keys, ok := latestSyncKeys(p1)
		return ok && keys["u1"] && keys["u2"]
	}, 5*time.Second, 10*time.Millisecond)

	// disconnect retracts presence: the next snapshots omit u2
	require.NoError(t, c2.Close())

	require.Eventually(t, func() bool {
		keys, ok := latestSyncKeys(p1)
		return ok && keys["u1"] && !keys["u2"]
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUntrackDropsFromSnapshot(t *testing.T) {
	_, wsURL := newTestServer(t)

	c1 := dial(t, wsURL, "u1")
	p1, err := c1.Presence("portal")
	require.NoError(t, err)
	require.NoError(t, p1.Track(domain.PresenceRecord{UserID: "u1", DisplayName: "User 1", OnlineAt: time.Now(), Status: "online"}))

	require.Eventually(t, func() bool {
		keys, ok := latestSyncKeys(p1)
		return ok && keys["u1"]
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, p1.Untrack())

	require.Eventually(t, func() bool {
		keys, ok := latestSyncKeys(p1)
		return ok && !keys["u1"]
	}, 5*time.Second, 10*time.Millisecond)
}
