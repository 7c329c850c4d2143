package domain

import (
	"errors"
	"time"
)

const MaxMessageLen = 4096

var (
	ErrMessageEmpty   = errors.New("message empty")
	ErrMessageTooLong = errors.New("message too long")
)

type MessageID string

// Message is append-only, ordered by (created_at, id). Profile is a
// denormalized join: the snapshot fetch returns it pre-joined, live events
// require a follow-up lookup by user_id.
type Message struct {
	ID        MessageID `json:"id"`
	RoomID    RoomID    `json:"room_id"`
	UserID    UserID    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Profile   *Profile  `json:"profile,omitempty"`
}

// Before reports whether m sorts ahead of other in the room history:
// created_at ascending, id ascending as tie-break.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

func ValidateContent(content string) error {
	if content == "" {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLen {
		return ErrMessageTooLong
	}
	return nil
}
