package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-realtime/internal/domain"
	"collab-realtime/pkg/xerrors"
)

type fakeFeed struct {
	ch   chan domain.ChangeEvent
	once sync.Once
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan domain.ChangeEvent, 16)}
}

func (f *fakeFeed) Events() <-chan domain.ChangeEvent { return f.ch }

func (f *fakeFeed) Unsubscribe() {
	f.once.Do(func() { close(f.ch) })
}

type fakeNotificationAPI struct {
	mu          sync.Mutex
	listResult  []*domain.Notification
	listErr     error
	mutationErr error
	markedRead  []string
	markedAll   int
	deleted     []string
}

func (a *fakeNotificationAPI) ListNotifications(ctx context.Context, limit int) ([]*domain.Notification, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listErr != nil {
		return nil, a.listErr
	}
	if len(a.listResult) > limit {
		return a.listResult[:limit], nil
	}
	return a.listResult, nil
}

func (a *fakeNotificationAPI) MarkNotificationRead(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mutationErr != nil {
		return a.mutationErr
	}
	a.markedRead = append(a.markedRead, id)
	return nil
}

func (a *fakeNotificationAPI) MarkAllNotificationsRead(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mutationErr != nil {
		return a.mutationErr
	}
	a.markedAll++
	return nil
}

func (a *fakeNotificationAPI) DeleteNotification(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mutationErr != nil {
		return a.mutationErr
	}
	a.deleted = append(a.deleted, id)
	return nil
}

func (a *fakeNotificationAPI) setMutationErr(err error) {
	a.mu.Lock()
	a.mutationErr = err
	a.mu.Unlock()
}

func strPtr(s string) *string { return &s }

func notif(id string, target *string, read bool) *domain.Notification {
	return &domain.Notification{
		ID:           id,
		Title:        "title " + id,
		Content:      "content " + id,
		Type:         domain.Info,
		TargetUserID: target,
		Read:         read,
		CreatedAt:    time.Now(),
	}
}

func insertEvent(t *testing.T, n *domain.Notification) domain.ChangeEvent {
	t.Helper()
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	return domain.ChangeEvent{Table: domain.TableNotifications, Kind: domain.EventInsert, Row: raw}
}

func updateEvent(t *testing.T, n *domain.Notification) domain.ChangeEvent {
	t.Helper()
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	return domain.ChangeEvent{Table: domain.TableNotifications, Kind: domain.EventUpdate, Row: raw}
}

func deleteEvent(t *testing.T, n *domain.Notification) domain.ChangeEvent {
	t.Helper()
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	return domain.ChangeEvent{Table: domain.TableNotifications, Kind: domain.EventDelete, OldRow: raw}
}

// requireUnreadInvariant checks that the incremental counter matches a
// recount of the list.
func requireUnreadInvariant(t *testing.T, s *NotificationStore) {
	t.Helper()
	count := 0
	for _, n := range s.Notifications() {
		if !n.Read {
			count++
		}
	}
	require.Equal(t, count, s.UnreadCount(), "unread counter diverged from recount")
}

func newStore(t *testing.T, api *fakeNotificationAPI) (*NotificationStore, *fakeFeed) {
	t.Helper()
	feed := newFakeFeed()
	s := NewNotificationStore(api, feed, "u1")
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(s.Close)
	return s, feed
}

func TestInitializeCountsUnread(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{
		notif("n1", nil, false),
		notif("n2", nil, false),
		notif("n3", strPtr("u1"), true),
	}}
	s, _ := newStore(t, api)

	assert.Len(t, s.Notifications(), 3)
	assert.Equal(t, 2, s.UnreadCount())
	requireUnreadInvariant(t, s)
}

func TestInitializeDeduplicatesByID(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{
		notif("n1", nil, false),
		notif("n1", nil, false),
		notif("n2", nil, true),
	}}
	s, _ := newStore(t, api)

	assert.Len(t, s.Notifications(), 2)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestInitializeFetchErrorLeavesStateUnchanged(t *testing.T) {
	api := &fakeNotificationAPI{listErr: errors.New("boom")}
	feed := newFakeFeed()
	s := NewNotificationStore(api, feed, "u1")

	require.Error(t, s.Initialize(context.Background()))
	assert.Empty(t, s.Notifications())
	assert.Equal(t, 0, s.UnreadCount())
}

func TestInsertEventPrependsAndCounts(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{
		notif("n1", nil, false),
		notif("n2", nil, false),
		notif("n3", strPtr("u1"), true),
	}}
	s, _ := newStore(t, api)

	s.apply(insertEvent(t, notif("n4", nil, false)))

	list := s.Notifications()
	require.Len(t, list, 4)
	assert.Equal(t, "n4", list[0].ID, "feed inserts go to the head")
	assert.Equal(t, 3, s.UnreadCount())
	requireUnreadInvariant(t, s)
}

func TestInsertEventIdempotent(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{notif("n1", nil, false)}}
	s, _ := newStore(t, api)

	ev := insertEvent(t, notif("n2", nil, false))
	s.apply(ev)
	lenOnce := len(s.Notifications())
	unreadOnce := s.UnreadCount()

	// duplicate delivery (transport-level retry)
	s.apply(ev)

	assert.Equal(t, lenOnce, len(s.Notifications()))
	assert.Equal(t, unreadOnce, s.UnreadCount())
	requireUnreadInvariant(t, s)
}

func TestInsertEventForOtherUserIgnored(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{notif("n1", nil, false)}}
	s, _ := newStore(t, api)

	s.apply(insertEvent(t, notif("n2", strPtr("someone-else"), false)))

	assert.Len(t, s.Notifications(), 1)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestUpdateEventReadTransitions(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{
		notif("n1", nil, false),
		notif("n2", nil, true),
	}}
	s, _ := newStore(t, api)
	require.Equal(t, 1, s.UnreadCount())

	// false -> true decrements
	s.apply(updateEvent(t, notif("n1", nil, true)))
	assert.Equal(t, 0, s.UnreadCount())
	requireUnreadInvariant(t, s)

	// true -> false increments
	s.apply(updateEvent(t, notif("n2", nil, false)))
	assert.Equal(t, 1, s.UnreadCount())
	requireUnreadInvariant(t, s)

	// list length never changed
	assert.Len(t, s.Notifications(), 2)
}

func TestUpdateEventUnknownIDIgnored(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{notif("n1", nil, false)}}
	s, _ := newStore(t, api)

	// stale event for an entry outside the local window
	s.apply(updateEvent(t, notif("ghost", nil, true)))

	assert.Len(t, s.Notifications(), 1)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestDeleteEventRemovesAndAdjusts(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{
		notif("n1", nil, false),
		notif("n2", nil, true),
	}}
	s, _ := newStore(t, api)

	s.apply(deleteEvent(t, notif("n1", nil, false)))

	assert.Len(t, s.Notifications(), 1)
	assert.Equal(t, 0, s.UnreadCount())
	requireUnreadInvariant(t, s)

	// second delivery is a no-op
	s.apply(deleteEvent(t, notif("n1", nil, false)))
	assert.Len(t, s.Notifications(), 1)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestMarkAsReadOptimistic(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{notif("n1", nil, false)}}
	s, _ := newStore(t, api)

	require.NoError(t, s.MarkAsRead(context.Background(), "n1"))

	assert.Equal(t, 0, s.UnreadCount())
	assert.True(t, s.Notifications()[0].Read)
	assert.Equal(t, []string{"n1"}, api.markedRead)

	// already-read entry: counter must not go negative
	require.NoError(t, s.MarkAsRead(context.Background(), "n1"))
	assert.Equal(t, 0, s.UnreadCount())
	requireUnreadInvariant(t, s)
}

func TestMarkAsReadRollsBackOnBackendError(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{notif("n1", nil, false)}}
	s, _ := newStore(t, api)
	api.setMutationErr(errors.New("backend down"))

	require.Error(t, s.MarkAsRead(context.Background(), "n1"))

	assert.Equal(t, 1, s.UnreadCount())
	assert.False(t, s.Notifications()[0].Read)
	requireUnreadInvariant(t, s)
}

func TestMarkAsReadUnknownID(t *testing.T) {
	api := &fakeNotificationAPI{}
	s, _ := newStore(t, api)

	err := s.MarkAsRead(context.Background(), "ghost")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestMarkAllAsRead(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{
		notif("n1", nil, false),
		notif("n2", nil, false),
		notif("n3", strPtr("u1"), true),
	}}
	s, _ := newStore(t, api)

	require.NoError(t, s.MarkAllAsRead(context.Background()))

	assert.Equal(t, 0, s.UnreadCount())
	for _, n := range s.Notifications() {
		assert.True(t, n.Read)
	}
	assert.Equal(t, 1, api.markedAll)
	requireUnreadInvariant(t, s)
}

func TestMarkAllAsReadRollsBackOnBackendError(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{
		notif("n1", nil, false),
		notif("n2", nil, true),
	}}
	s, _ := newStore(t, api)
	api.setMutationErr(errors.New("backend down"))

	require.Error(t, s.MarkAllAsRead(context.Background()))

	assert.Equal(t, 1, s.UnreadCount())
	requireUnreadInvariant(t, s)
}

func TestDeleteOptimistic(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{
		notif("n1", nil, false),
		notif("n2", nil, true),
	}}
	s, _ := newStore(t, api)

	require.NoError(t, s.Delete(context.Background(), "n1"))

	assert.Len(t, s.Notifications(), 1)
	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, []string{"n1"}, api.deleted)

	// the eventual feed Delete for the same row is a no-op
	s.apply(deleteEvent(t, notif("n1", nil, false)))
	assert.Len(t, s.Notifications(), 1)
	assert.Equal(t, 0, s.UnreadCount())
	requireUnreadInvariant(t, s)
}

func TestDeleteRestoresOnBackendError(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{
		notif("n1", nil, false),
		notif("n2", nil, true),
	}}
	s, _ := newStore(t, api)
	api.setMutationErr(errors.New("backend down"))

	require.Error(t, s.Delete(context.Background(), "n1"))

	assert.Len(t, s.Notifications(), 2)
	assert.Equal(t, "n1", s.Notifications()[0].ID)
	assert.Equal(t, 1, s.UnreadCount())
	requireUnreadInvariant(t, s)
}

func TestFeedLoopAppliesEvents(t *testing.T) {
	api := &fakeNotificationAPI{listResult: []*domain.Notification{notif("n1", nil, false)}}
	s, feed := newStore(t, api)

	feed.ch <- insertEvent(t, notif("n2", nil, false))

	require.Eventually(t, func() bool {
		return s.UnreadCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "n2", s.Notifications()[0].ID)
}

func TestCloseIsIdempotent(t *testing.T) {
	api := &fakeNotificationAPI{}
	s, _ := newStore(t, api)

	s.Close()
	s.Close()
}
