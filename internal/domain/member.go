package domain

import "time"

type MemberID string

// Role of a member inside a room. Role changes arrive from outside; the
// sync engine never promotes or demotes anyone itself.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Member represents a user's participation in a room, keyed by
// (room_id, user_id). Profile is a denormalized join for display.
type Member struct {
	ID       MemberID  `json:"id"`
	RoomID   RoomID    `json:"room_id"`
	UserID   UserID    `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
	Profile  *Profile  `json:"profile,omitempty"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(roomID RoomID, userID UserID, role Role, now time.Time) *Member {
	return &Member{
		ID:       MemberID(string(roomID) + ":" + string(userID)),
		RoomID:   roomID,
		UserID:   userID,
		Role:     role,
		JoinedAt: now,
	}
}
