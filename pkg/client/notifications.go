package client

import (
	"context"
	"log"
	"sync"

	"collab-realtime/internal/domain"
	"collab-realtime/pkg/xerrors"
)

// initialFetchLimit caps the bulk fetch that seeds the local window.
const initialFetchLimit = 50

// Feed is a change-feed subscription as consumed by the stores. Satisfied
// by *realtime.Channel.
type Feed interface {
	Events() <-chan domain.ChangeEvent
	Unsubscribe()
}

// NotificationAPI is the slice of the REST surface the store mutates
// through.
type NotificationAPI interface {
	ListNotifications(ctx context.Context, limit int) ([]*domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
}

// NotificationStore keeps the authoritative local list of notifications for
// one user and a derived unread counter. One goroutine applies feed events;
// local mutations are optimistic and reconciled by the feed.
//
// Invariant at every observable point: UnreadCount() equals the number of
// entries with Read == false.
type NotificationStore struct {
	api    NotificationAPI
	feed   Feed
	userID string

	mu      sync.Mutex
	list    []*domain.Notification
	unread  int
	started bool

	closeOnce sync.Once
}

func NewNotificationStore(api NotificationAPI, feed Feed, userID string) *NotificationStore {
	return &NotificationStore{
		api:    api,
		feed:   feed,
		userID: userID,
	}
}

// Initialize seeds the store with the most recent notifications visible to
// the user and starts the feed apply loop. On fetch error local state is
// left unchanged. Calling it again refetches, which is the resync path
// after a transport drop.
func (s *NotificationStore) Initialize(ctx context.Context) error {
	items, err := s.api.ListNotifications(ctx, initialFetchLimit)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.list = s.list[:0]
	s.unread = 0
	// dedupe by id: a backend may return the same logical broadcast row
	// more than once
	seen := make(map[string]struct{}, len(items))
	for _, n := range items {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		entry := *n
		s.list = append(s.list, &entry)
		if !entry.Read {
			s.unread++
		}
	}
	start := !s.started
	s.started = true
	s.mu.Unlock()

	if start {
		go s.run()
	}
	return nil
}

// run is the single-threaded apply loop. It exits when the feed channel
// closes (teardown or transport drop).
func (s *NotificationStore) run() {
	for ev := range s.feed.Events() {
		s.apply(ev)
	}
}

func (s *NotificationStore) apply(ev domain.ChangeEvent) {
	var row domain.Notification
	switch ev.Kind {
	case domain.EventInsert, domain.EventUpdate:
		if err := ev.DecodeRow(&row); err != nil {
			log.Printf("[STORE] bad %s row: %v", ev.Kind, err)
			return
		}
	case domain.EventDelete:
		if err := ev.DecodeOldRow(&row); err != nil {
			log.Printf("[STORE] bad %s row: %v", ev.Kind, err)
			return
		}
	}
	if !row.VisibleTo(s.userID) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.find(row.ID)
	switch ev.Kind {
	case domain.EventInsert:
		if idx >= 0 {
			// duplicate delivery, already applied
			return
		}
		entry := row
		s.list = append([]*domain.Notification{&entry}, s.list...)
		if !entry.Read {
			s.unread++
		}

	case domain.EventUpdate:
		if idx < 0 {
			// stale event for an entry outside the local window
			return
		}
		old := s.list[idx]
		if !old.Read && row.Read {
			s.unread--
		} else if old.Read && !row.Read {
			s.unread++
		}
		entry := row
		s.list[idx] = &entry

	case domain.EventDelete:
		if idx < 0 {
			// already removed locally, no-op
			return
		}
		if !s.list[idx].Read {
			s.unread--
		}
		s.list = append(s.list[:idx], s.list[idx+1:]...)
	}
}

// find returns the index of the entry with the given id, -1 if absent.
// Callers hold s.mu.
func (s *NotificationStore) find(id string) int {
	for i, n := range s.list {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// MarkAsRead optimistically flips the local read flag, then issues the
// backend mutation. On backend failure the optimistic change is rolled
// back and the error surfaced to the caller.
func (s *NotificationStore) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.find(id)
	if idx < 0 {
		s.mu.Unlock()
		return xerrors.ErrNotFound
	}
	wasUnread := !s.list[idx].Read
	if wasUnread {
		s.list[idx].Read = true
		s.unread--
	}
	s.mu.Unlock()

	if err := s.api.MarkNotificationRead(ctx, id); err != nil {
		s.mu.Lock()
		if i := s.find(id); i >= 0 && wasUnread && s.list[i].Read {
			s.list[i].Read = false
			s.unread++
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// MarkAllAsRead marks every locally visible entry read and zeroes the
// counter, then issues the bulk backend mutation scoped to the same
// visibility predicate as the initial fetch.
func (s *NotificationStore) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	var flipped []string
	for _, n := range s.list {
		if !n.Read {
			n.Read = true
			flipped = append(flipped, n.ID)
		}
	}
	s.unread = 0
	s.mu.Unlock()

	if err := s.api.MarkAllNotificationsRead(ctx); err != nil {
		s.mu.Lock()
		for _, id := range flipped {
			if i := s.find(id); i >= 0 && s.list[i].Read {
				s.list[i].Read = false
				s.unread++
			}
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Delete optimistically removes the entry, then issues the backend delete.
// The eventual feed Delete event is a no-op since the entry is already
// gone. On backend failure the entry is restored.
func (s *NotificationStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.find(id)
	var removed *domain.Notification
	if idx >= 0 {
		removed = s.list[idx]
		if !removed.Read {
			s.unread--
		}
		s.list = append(s.list[:idx], s.list[idx+1:]...)
	}
	s.mu.Unlock()

	if err := s.api.DeleteNotification(ctx, id); err != nil {
		if removed != nil {
			s.mu.Lock()
			if s.find(id) < 0 {
				if idx > len(s.list) {
					idx = len(s.list)
				}
				s.list = append(s.list[:idx], append([]*domain.Notification{removed}, s.list[idx:]...)...)
				if !removed.Read {
					s.unread++
				}
			}
			s.mu.Unlock()
		}
		return err
	}
	return nil
}

// Notifications returns a copy of the local list, newest-positioned first.
func (s *NotificationStore) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, len(s.list))
	for i, n := range s.list {
		out[i] = *n
	}
	return out
}

// UnreadCount returns the derived unread counter.
func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Close tears the feed subscription down; the apply loop exits when its
// channel closes. Safe to call more than once.
func (s *NotificationStore) Close() {
	s.closeOnce.Do(func() {
		s.feed.Unsubscribe()
	})
}
