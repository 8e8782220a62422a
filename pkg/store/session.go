package store

import "time"

// Session is the time-bounded identity wrapping one live ApplicationContext.
// ExpiresAt is fixed at creation; touching a session never moves it.
type Session struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"createdAt"`
	ExpiresAt time.Time          `json:"expiresAt"`
	TouchedAt time.Time          `json:"touchedAt"`
	Context   ApplicationContext `json:"context"`
}

// Expired reports whether now is strictly past the session's expiry.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Message is one transcript entry.
type Message struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
