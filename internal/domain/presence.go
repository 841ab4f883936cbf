package domain

import "time"

// PresenceRecord is the payload a client broadcasts while its channel
// connection is alive. It is never persisted; absence from the next
// presence snapshot means the user went offline.
type PresenceRecord struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	OnlineAt    time.Time `json:"online_at"`
	Status      string    `json:"status"`
}

// PresenceSettings is the persisted per-user visibility row. A user's
// PresenceRecord is exposed to others iff ShowPresence is true.
type PresenceSettings struct {
	UserID       string    `json:"user_id"`
	ShowPresence bool      `json:"show_presence"`
	CustomStatus *string   `json:"custom_status,omitempty"` // max ~50 chars, bounds broadcast payload size
	UpdatedAt    time.Time `json:"updated_at"`
}

// SettingsPatch carries a partial settings update. Nil fields are left
// unchanged by the upsert.
type SettingsPatch struct {
	ShowPresence *bool   `json:"show_presence,omitempty"`
	CustomStatus *string `json:"custom_status,omitempty"`
}
