// Package domain contains entity types without logic, just meta-data.
package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	MaxUsernameLen = 36
	MaxFullNameLen = 80
)

var (
	ErrUsernameEmpty = errors.New("username empty")
)

type UserID string

// Identity is the read-only reference handed out by the external auth
// authority. It lives exactly as long as the authenticated session.
type Identity struct {
	ID        UserID `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Profile is the durable application-owned user record, one-to-one with
// Identity by id. Created lazily on first sign-in.
type Profile struct {
	ID        UserID    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewProfile seeds a profile from identity claims, used on first sign-in
// when no profile row exists yet.
func NewProfile(id Identity, now time.Time) (*Profile, error) {
	username := id.Name
	if username == "" {
		username = usernameFromEmail(id.Email)
	}
	if username == "" {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		username = username[:MaxUsernameLen]
	}
	fullName := id.Name
	if len(fullName) > MaxFullNameLen {
		fullName = fullName[:MaxFullNameLen]
	}
	return &Profile{
		ID:        id.ID,
		Username:  username,
		FullName:  fullName,
		AvatarURL: id.AvatarURL,
		CreatedAt: now,
	}, nil
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
