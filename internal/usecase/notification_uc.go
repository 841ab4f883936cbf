package usecase

import (
	"context"
	"encoding/json"
	"log"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/hub"
	"collab-realtime/internal/repository"
	"collab-realtime/pkg/xerrors"

	"github.com/google/uuid"
)

type NotificationUsecase struct {
	repo repository.Repository
	hub  *hub.Hub
}

// NewNotificationUsecase creates a new NotificationUsecase with repo + hub
func NewNotificationUsecase(r repository.Repository, h *hub.Hub) *NotificationUsecase {
	return &NotificationUsecase{
		repo: r,
		hub:  h,
	}
}

// publishChange pushes the event onto the change feed. A publish failure is
// logged, not returned: the DB write already committed and subscribers
// resynchronize with a full refetch on reconnect.
func (uc *NotificationUsecase) publishChange(ctx context.Context, kind domain.EventKind, newRow, oldRow *domain.Notification) {
	ev := domain.ChangeEvent{Table: domain.TableNotifications, Kind: kind}
	if newRow != nil {
		raw, err := json.Marshal(newRow)
		if err != nil {
			log.Printf("[NOTIF] failed to encode change row: %v", err)
			return
		}
		ev.Row = raw
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		if err != nil {
			log.Printf("[NOTIF] failed to encode change old row: %v", err)
			return
		}
		ev.OldRow = raw
	}
	if err := uc.hub.PublishChange(ctx, ev); err != nil {
		log.Printf("[NOTIF] failed to publish %s event: %v", kind, err)
	}
}

// CreateNotification persists a notification and pushes the Insert event to
// feed subscribers.
func (uc *NotificationUsecase) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if n.Title == "" || n.Content == "" {
		return nil, xerrors.ErrInvalidInput
	}
	switch n.Type {
	case domain.Info, domain.Success, domain.Warning, domain.Error:
	case "":
		n.Type = domain.Info
	default:
		return nil, xerrors.ErrInvalidInput
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	created, err := uc.repo.CreateNotification(ctx, n)
	if err != nil {
		return nil, err
	}

	uc.publishChange(ctx, domain.EventInsert, created, nil)
	return created, nil
}

// ListForUser returns the newest notifications visible to the user:
// broadcasts plus rows addressed to them.
func (uc *NotificationUsecase) ListForUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return uc.repo.ListNotificationsForUser(ctx, userID, limit)
}

// MarkAsRead flips the read flag and pushes the Update event.
func (uc *NotificationUsecase) MarkAsRead(ctx context.Context, id, userID string) error {
	if id == "" {
		return xerrors.ErrInvalidInput
	}
	updated, err := uc.repo.MarkNotificationRead(ctx, id, userID)
	if err != nil {
		return err
	}
	uc.publishChange(ctx, domain.EventUpdate, updated, nil)
	return nil
}

// MarkAllAsRead bulk-updates every unread row visible to the user and
// pushes one Update event per affected row.
func (uc *NotificationUsecase) MarkAllAsRead(ctx context.Context, userID string) error {
	updated, err := uc.repo.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return err
	}
	for _, n := range updated {
		uc.publishChange(ctx, domain.EventUpdate, n, nil)
	}
	return nil
}

// Delete removes a notification and pushes the Delete event carrying the
// old row.
func (uc *NotificationUsecase) Delete(ctx context.Context, id, userID string) error {
	if id == "" {
		return xerrors.ErrInvalidInput
	}
	deleted, err := uc.repo.DeleteNotification(ctx, id, userID)
	if err != nil {
		return err
	}
	uc.publishChange(ctx, domain.EventDelete, nil, deleted)
	return nil
}
