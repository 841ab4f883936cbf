package repository

import (
	"context"
	"errors"

	"collab-realtime/internal/domain"
	"collab-realtime/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository aggregates the DB operations behind the realtime feeds.
type Repository interface {
	// Notifications
	CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	ListNotificationsForUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) (*domain.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) ([]*domain.Notification, error)
	DeleteNotification(ctx context.Context, id, userID string) (*domain.Notification, error)

	// Presence settings
	ListPresenceSettings(ctx context.Context) ([]*domain.PresenceSettings, error)
	GetPresenceSettings(ctx context.Context, userID string) (*domain.PresenceSettings, error)
	UpsertPresenceSettings(ctx context.Context, userID string, patch domain.SettingsPatch) (*domain.PresenceSettings, bool, error)
}

type pgRepo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &pgRepo{db: db}
}

const notificationColumns = `id, title, content, type, target_user_id, read, action_url, metadata, created_at`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID,
		&n.Title,
		&n.Content,
		&n.Type,
		&n.TargetUserID,
		&n.Read,
		&n.ActionURL,
		&n.Metadata,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// CreateNotification implements Repository.
func (p *pgRepo) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	query := `
		INSERT INTO notifications (
			id, title, content, type, target_user_id, read, action_url, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING ` + notificationColumns

	row := p.db.QueryRow(ctx, query,
		n.ID,
		n.Title,
		n.Content,
		n.Type,
		n.TargetUserID,
		n.Read,
		n.ActionURL,
		n.Metadata,
	)
	created, err := scanNotification(row)
	if err != nil {
		if xerrors.ParsePGErrorCode(err) == "23505" {
			// duplicate id, caller supplied one that already exists
			return nil, xerrors.ErrInvalidRequest
		}
		return nil, err
	}
	return created, nil
}

// ListNotificationsForUser implements Repository. Returns rows addressed to
// the user plus broadcasts, newest first.
func (p *pgRepo) ListNotificationsForUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE target_user_id IS NULL OR target_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := p.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return notifications, nil
}

// MarkNotificationRead implements Repository.
func (p *pgRepo) MarkNotificationRead(ctx context.Context, id, userID string) (*domain.Notification, error) {
	query := `
		UPDATE notifications
		SET read = true
		WHERE id = $1
		  AND (target_user_id IS NULL OR target_user_id = $2)
		RETURNING ` + notificationColumns

	return scanNotification(p.db.QueryRow(ctx, query, id, userID))
}

// MarkAllNotificationsRead implements Repository. Scoped to the same
// visibility predicate as ListNotificationsForUser.
func (p *pgRepo) MarkAllNotificationsRead(ctx context.Context, userID string) ([]*domain.Notification, error) {
	query := `
		UPDATE notifications
		SET read = true
		WHERE read = false
		  AND (target_user_id IS NULL OR target_user_id = $1)
		RETURNING ` + notificationColumns

	rows, err := p.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updated []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		updated = append(updated, n)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return updated, nil
}

// DeleteNotification implements Repository. Returns the deleted row so the
// feed can publish it as the event's old row.
func (p *pgRepo) DeleteNotification(ctx context.Context, id, userID string) (*domain.Notification, error) {
	query := `
		DELETE FROM notifications
		WHERE id = $1
		  AND (target_user_id IS NULL OR target_user_id = $2)
		RETURNING ` + notificationColumns

	return scanNotification(p.db.QueryRow(ctx, query, id, userID))
}

const settingsColumns = `user_id, show_presence, custom_status, updated_at`

func scanSettings(row pgx.Row, extra ...interface{}) (*domain.PresenceSettings, error) {
	var s domain.PresenceSettings
	dest := []interface{}{&s.UserID, &s.ShowPresence, &s.CustomStatus, &s.UpdatedAt}
	dest = append(dest, extra...)
	err := row.Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListPresenceSettings implements Repository. All rows are readable by all
// clients so each can compute visibility.
func (p *pgRepo) ListPresenceSettings(ctx context.Context) ([]*domain.PresenceSettings, error) {
	query := `
		SELECT ` + settingsColumns + `
		FROM presence_settings
	`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []*domain.PresenceSettings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return settings, nil
}

// GetPresenceSettings implements Repository.
func (p *pgRepo) GetPresenceSettings(ctx context.Context, userID string) (*domain.PresenceSettings, error) {
	query := `
		SELECT ` + settingsColumns + `
		FROM presence_settings
		WHERE user_id = $1
	`

	return scanSettings(p.db.QueryRow(ctx, query, userID))
}

// UpsertPresenceSettings implements Repository. The bool result is true when
// the row was created, so the feed publishes INSERT vs UPDATE correctly.
func (p *pgRepo) UpsertPresenceSettings(ctx context.Context, userID string, patch domain.SettingsPatch) (*domain.PresenceSettings, bool, error) {
	// xmax = 0 distinguishes a fresh insert from a conflict-update.
	query := `
		INSERT INTO presence_settings (user_id, show_presence, custom_status, updated_at)
		VALUES ($1, COALESCE($2, true), $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			show_presence = COALESCE($2, presence_settings.show_presence),
			custom_status = COALESCE($3, presence_settings.custom_status),
			updated_at = NOW()
		RETURNING ` + settingsColumns + `, (xmax = 0) AS inserted`

	var inserted bool
	s, err := scanSettings(p.db.QueryRow(ctx, query, userID, patch.ShowPresence, patch.CustomStatus), &inserted)
	if err != nil {
		return nil, false, err
	}
	return s, inserted, nil
}
