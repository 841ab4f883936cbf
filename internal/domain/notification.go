package domain

import "time"

// NotificationType defines category of messages
type NotificationType string

const (
	Info    NotificationType = "info"
	Success NotificationType = "success"
	Warning NotificationType = "warning"
	Error   NotificationType = "error"
)

type Notification struct {
	ID           string                 `json:"id"`
	Title        string                 `json:"title"`
	Content      string                 `json:"content"`
	Type         NotificationType       `json:"type"`
	TargetUserID *string                `json:"target_user_id,omitempty"` // nil = broadcast to all users
	Read         bool                   `json:"read"`
	ActionURL    *string                `json:"action_url,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// VisibleTo reports whether the notification is addressed to the given user,
// either directly or as a broadcast.
func (n *Notification) VisibleTo(userID string) bool {
	if n.TargetUserID == nil {
		return true
	}
	return *n.TargetUserID == userID
}
