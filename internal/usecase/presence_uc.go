package usecase

import (
	"context"
	"encoding/json"
	"log"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/hub"
	"collab-realtime/internal/repository"
	"collab-realtime/pkg/xerrors"
)

const maxCustomStatusLen = 50

type PresenceUsecase struct {
	repo repository.Repository
	hub  *hub.Hub
}

func NewPresenceUsecase(r repository.Repository, h *hub.Hub) *PresenceUsecase {
	return &PresenceUsecase{
		repo: r,
		hub:  h,
	}
}

// ListSettings returns every presence settings row. All rows are readable
// by all clients so each can compute who is visible.
func (uc *PresenceUsecase) ListSettings(ctx context.Context) ([]*domain.PresenceSettings, error) {
	return uc.repo.ListPresenceSettings(ctx)
}

// GetSettings returns the caller's row.
func (uc *PresenceUsecase) GetSettings(ctx context.Context, userID string) (*domain.PresenceSettings, error) {
	return uc.repo.GetPresenceSettings(ctx, userID)
}

// UpsertSettings writes the caller's row and pushes the Insert/Update event
// on the presence_settings feed.
func (uc *PresenceUsecase) UpsertSettings(ctx context.Context, userID string, patch domain.SettingsPatch) (*domain.PresenceSettings, error) {
	if userID == "" {
		return nil, xerrors.ErrUserIDRequired
	}
	if patch.CustomStatus != nil && len(*patch.CustomStatus) > maxCustomStatusLen {
		return nil, xerrors.ErrInvalidInput
	}

	settings, inserted, err := uc.repo.UpsertPresenceSettings(ctx, userID, patch)
	if err != nil {
		return nil, err
	}

	kind := domain.EventUpdate
	if inserted {
		kind = domain.EventInsert
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		log.Printf("[PRESENCE] failed to encode settings row: %v", err)
		return settings, nil
	}
	if err := uc.hub.PublishChange(ctx, domain.ChangeEvent{
		Table: domain.TablePresenceSettings,
		Kind:  kind,
		Row:   raw,
	}); err != nil {
		log.Printf("[PRESENCE] failed to publish settings %s event: %v", kind, err)
	}

	return settings, nil
}
