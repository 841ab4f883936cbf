package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"collab-realtime/internal/domain"
	"collab-realtime/pkg/xerrors"
)

// API is the request/response side of the realtime service: bulk fetches
// and mutations against the tables the feeds watch.
type API struct {
	baseURL string
	userID  string
	http    *http.Client
}

func NewAPI(baseURL, userID string) *API {
	return &API{
		baseURL: baseURL,
		userID:  userID,
		http:    http.DefaultClient,
	}
}

func (a *API) do(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("X-User-ID", a.userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("api: decode %s %s response: %w", method, path, err)
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusNotFound {
			return xerrors.ErrNotFound
		}
		return fmt.Errorf("api: %s %s: %s (status %d)", method, path, envelope.Message, resp.StatusCode)
	}

	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("api: decode %s %s data: %w", method, path, err)
		}
	}
	return nil
}

func (a *API) ListNotifications(ctx context.Context, limit int) ([]*domain.Notification, error) {
	path := "/api/v1/notifications"
	if limit > 0 {
		path += "?limit=" + url.QueryEscape(strconv.Itoa(limit))
	}
	var items []*domain.Notification
	if err := a.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (a *API) MarkNotificationRead(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodPatch, "/api/v1/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (a *API) MarkAllNotificationsRead(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/v1/notifications/read-all", nil, nil)
}

func (a *API) DeleteNotification(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/api/v1/notifications/"+url.PathEscape(id), nil, nil)
}

func (a *API) ListPresenceSettings(ctx context.Context) ([]*domain.PresenceSettings, error) {
	var items []*domain.PresenceSettings
	if err := a.do(ctx, http.MethodGet, "/api/v1/presence/settings", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (a *API) UpsertPresenceSettings(ctx context.Context, patch domain.SettingsPatch) (*domain.PresenceSettings, error) {
	var settings domain.PresenceSettings
	if err := a.do(ctx, http.MethodPut, "/api/v1/presence/settings", patch, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}
