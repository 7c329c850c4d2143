// Package core implements the session and room synchronization engine.
// External collaborators (auth authority, record store, realtime transport,
// blob storage) are consumed through the narrow interfaces in this file;
// adapters own the actual transports and must close them.
package core

import (
	"context"
	"io"

	"github.com/dkeye/roomsync/internal/domain"
)

// Session is what the auth authority reports for the current process.
type Session struct {
	Identity domain.Identity
}

type AuthEventKind string

const (
	AuthSignedIn       AuthEventKind = "signed_in"
	AuthSignedOut      AuthEventKind = "signed_out"
	AuthTokenRefreshed AuthEventKind = "token_refreshed"
)

// AuthEvent is a live auth state notification. Session is nil when the
// event reports no active session.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}

// AuthAuthority is the external identity provider.
type AuthAuthority interface {
	// CurrentSession returns the persisted session, or nil when signed out.
	CurrentSession(ctx context.Context) (*Session, error)
	// OnStateChange registers a live listener and returns its unsubscribe.
	OnStateChange(handler func(AuthEvent)) (func(), error)
	SignOut(ctx context.Context) error
}

// RecordStore is the durable relational store, addressed by primary and
// foreign keys only. Implementations map their not-found and duplicate-key
// conditions to ErrNotFound and ErrConflict.
type RecordStore interface {
	ProfileByID(ctx context.Context, id domain.UserID) (*domain.Profile, error)
	CreateProfile(ctx context.Context, p *domain.Profile) error

	RoomByID(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	RoomMembers(ctx context.Context, roomID domain.RoomID) ([]domain.Member, error)
	RoomMessages(ctx context.Context, roomID domain.RoomID) ([]domain.Message, error)
	IsMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error)

	InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)
	AddMember(ctx context.Context, m *domain.Member) error
	RemoveMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
}

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// MessageEvent is a row-level change on a room's message topic.
type MessageEvent struct {
	Kind    ChangeKind
	Message domain.Message
}

// MembershipEvent is a row-level change on a room's membership topic.
// Only the keys are trusted; consumers re-fetch the member list wholesale.
type MembershipEvent struct {
	Kind   ChangeKind
	RoomID domain.RoomID
	UserID domain.UserID
}

// Subscription is a live topic registration. Unsubscribe must be safe to
// call more than once.
type Subscription interface {
	Unsubscribe() error
}

// Realtime is the change-notification transport. Delivery is at-least-once
// per topic and assumed ordered within a single topic.
type Realtime interface {
	SubscribeMessages(roomID domain.RoomID, handler func(MessageEvent)) (Subscription, error)
	SubscribeMembership(roomID domain.RoomID, handler func(MembershipEvent)) (Subscription, error)
	// OnDisconnect registers a transport-loss listener and returns its
	// unsubscribe. No automatic recovery happens here; the caller decides.
	OnDisconnect(handler func(error)) func()
}

// BlobStorage stores media and returns a public URL for embedding in
// message content. Not part of the sync state model.
type BlobStorage interface {
	Upload(ctx context.Context, name string, content io.Reader, roomID domain.RoomID, ownerID domain.UserID) (string, error)
}
