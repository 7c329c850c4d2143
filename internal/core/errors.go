package core

import "errors"

// Store-level conditions adapters must map onto.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("duplicate record")
)

// Engine-level taxonomy. Session-lifecycle errors are absorbed into the
// SessionStore's Err field; room and per-action errors return to the caller.
var (
	ErrInitTimeout       = errors.New("authentication timed out")
	ErrInitFailure       = errors.New("session initialization failed")
	ErrProfileResolution = errors.New("profile resolution failed")
	ErrRoomNotFound      = errors.New("room not found")
	ErrSnapshotLoad      = errors.New("room snapshot load failed")
	ErrSendFailure       = errors.New("message send failed")
	ErrSubscription      = errors.New("subscription failed")
	ErrConnectionLost    = errors.New("realtime connection lost")
	ErrNoSession         = errors.New("no active session")
	ErrNotMember         = errors.New("not a member of this room")
)

// Human-readable strings surfaced through SessionStore state.
const (
	msgInitTimeout    = "Authentication timed out"
	msgInitFailure    = "Could not restore your session"
	msgProfileLoad    = "Could not load your profile"
	msgProfileRefresh = "Could not refresh your profile"
)
