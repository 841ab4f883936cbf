package client

import (
	"fmt"
	"sync"
)

// OpenFeed opens an unfiltered change-feed subscription for a table.
type OpenFeed func(table string) (Feed, error)

// SyncCoordinator fans table-change signals out to registered refetch
// callbacks. It never inspects payloads: a callback just means "this table
// changed, refetch if you care", and it is safe to invoke more often than
// strictly necessary.
type SyncCoordinator struct {
	open OpenFeed

	mu    sync.Mutex
	feeds map[string]Feed

	closeOnce sync.Once
}

func NewSyncCoordinator(open OpenFeed) *SyncCoordinator {
	return &SyncCoordinator{
		open:  open,
		feeds: make(map[string]Feed),
	}
}

// Register opens the table's feed and invokes onChange on every event,
// regardless of kind. One registration per table.
func (c *SyncCoordinator) Register(table string, onChange func()) error {
	c.mu.Lock()
	if _, dup := c.feeds[table]; dup {
		c.mu.Unlock()
		return fmt.Errorf("sync: table %s already registered", table)
	}
	c.mu.Unlock()

	feed, err := c.open(table)
	if err != nil {
		return err
	}

	// re-check: a concurrent Register for the same table may have won
	// while the feed was opening
	c.mu.Lock()
	if _, dup := c.feeds[table]; dup {
		c.mu.Unlock()
		feed.Unsubscribe()
		return fmt.Errorf("sync: table %s already registered", table)
	}
	c.feeds[table] = feed
	c.mu.Unlock()

	go func() {
		for range feed.Events() {
			onChange()
		}
	}()
	return nil
}

// Close tears every feed down exactly once.
func (c *SyncCoordinator) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		feeds := make([]Feed, 0, len(c.feeds))
		for _, f := range c.feeds {
			feeds = append(feeds, f)
		}
		c.mu.Unlock()

		for _, f := range feeds {
			f.Unsubscribe()
		}
	})
}
