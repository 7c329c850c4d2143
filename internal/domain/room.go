package domain

import (
	"errors"
	"time"
)

const MaxRoomNameLen = 64

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

type RoomID string

// Room is read-only from the sync engine's perspective. It is fetched once
// per room-open; only membership and messages are live-synchronized.
type Room struct {
	ID          RoomID    `json:"id"`
	Name        string    `json:"name"`
	Subject     string    `json:"subject,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatorID   UserID    `json:"creator_id"`
	MaxMembers  int       `json:"max_members,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r *Room) Validate() error {
	if r.Name == "" {
		return ErrRoomNameEmpty
	}
	if len(r.Name) > MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	return nil
}
