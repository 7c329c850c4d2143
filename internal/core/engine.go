package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomsync/internal/domain"
)

// Engine is the caller-facing surface of the sync core. It is explicitly
// constructed and explicitly torn down; nothing here lives in package
// globals. At most one room is open at a time.
type Engine struct {
	sessions *SessionStore
	store    RecordStore
	blobs    BlobStorage
	loader   *SnapshotLoader
	sup      *Supervisor
	now      func() time.Time

	baseCtx context.Context

	mu   sync.Mutex
	view *RoomView
}

// RoomView is the merged, ordered, live-updating view of one open room.
type RoomView struct {
	RoomID domain.RoomID
	rec    *Reconciler
}

func (v *RoomView) State() RoomState         { return v.rec.State() }
func (v *RoomView) Updates() <-chan struct{} { return v.rec.Updates() }
func (v *RoomView) IsMember() bool           { return v.rec.IsMember() }

type EngineOption func(*Engine)

// WithBlobStorage enables media uploads.
func WithBlobStorage(blobs BlobStorage) EngineOption {
	return func(e *Engine) { e.blobs = blobs }
}

func NewEngine(ctx context.Context, sessions *SessionStore, store RecordStore, rt Realtime, opts ...EngineOption) *Engine {
	e := &Engine{
		sessions: sessions,
		store:    store,
		loader:   NewSnapshotLoader(store),
		sup:      NewSupervisor(rt, store),
		now:      time.Now,
		baseCtx:  ctx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init runs the session initialization sequence (exactly once).
func (e *Engine) Init(ctx context.Context) {
	e.sessions.Init(ctx)
}

// CurrentSession returns the observable session state.
func (e *Engine) CurrentSession() SessionState {
	return e.sessions.Current()
}

func (e *Engine) RefreshProfile(ctx context.Context) {
	e.sessions.RefreshProfile(ctx)
}

// SignOut ends the session: all bridges close, then the external sign-out
// runs and local session state clears.
func (e *Engine) SignOut(ctx context.Context) {
	e.CloseRoom()
	e.sessions.SignOut(ctx)
}

// OpenRoom loads the room snapshot and, for members, opens the live
// bridge. Any previously open room closes first. ErrRoomNotFound means
// the caller must navigate away; ErrSnapshotLoad means nothing is shown.
func (e *Engine) OpenRoom(ctx context.Context, roomID domain.RoomID) (*RoomView, error) {
	sess := e.sessions.Current()
	if sess.Identity == nil {
		return nil, ErrNoSession
	}
	uid := sess.Identity.ID

	e.CloseRoom()

	snap, err := e.loader.Load(ctx, roomID, uid)
	if err != nil {
		return nil, err
	}

	rec := NewReconciler()
	rec.SetSnapshot(snap)

	// Membership gate: the bridge exists only for confirmed members.
	if snap.IsMember {
		if err := e.sup.Activate(e.baseCtx, rec, roomID, uid); err != nil {
			return nil, err
		}
	}

	view := &RoomView{RoomID: roomID, rec: rec}
	e.mu.Lock()
	e.view = view
	e.mu.Unlock()
	log.Info().Str("module", "core.engine").Str("room", string(roomID)).Bool("member", snap.IsMember).Msg("room opened")
	return view, nil
}

// CloseRoom tears down the open room's bridge and drops the view.
// Idempotent; safe with no room open.
func (e *Engine) CloseRoom() {
	e.sup.Deactivate()
	e.mu.Lock()
	e.view = nil
	e.mu.Unlock()
}

// SendMessage persists a message and merges the confirmed row into the
// open view. Only members may post. A failed send performs no reconciler
// mutation. The same row usually also arrives on the live topic; the id
// dedup absorbs it.
func (e *Engine) SendMessage(ctx context.Context, roomID domain.RoomID, content string) (*domain.Message, error) {
	if err := domain.ValidateContent(content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	sess := e.sessions.Current()
	if sess.Identity == nil {
		return nil, ErrNoSession
	}
	isMember, err := e.store.IsMember(ctx, roomID, sess.Identity.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: membership check: %v", ErrSendFailure, err)
	}
	if !isMember {
		return nil, ErrNotMember
	}

	m := &domain.Message{
		ID:        domain.MessageID(uuid.NewString()),
		RoomID:    roomID,
		UserID:    sess.Identity.ID,
		Content:   content,
		CreatedAt: e.now().UTC(),
	}
	confirmed, err := e.store.InsertMessage(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	if confirmed.Profile == nil {
		confirmed.Profile = sess.Profile
	}

	e.mu.Lock()
	view := e.view
	e.mu.Unlock()
	if view != nil && view.RoomID == roomID {
		view.rec.AppendMessage(*confirmed)
	}
	return confirmed, nil
}

// JoinRoom adds the current identity to the room. If that room is open,
// the member list refreshes and the live bridge opens.
func (e *Engine) JoinRoom(ctx context.Context, roomID domain.RoomID) error {
	sess := e.sessions.Current()
	if sess.Identity == nil {
		return ErrNoSession
	}
	uid := sess.Identity.ID

	member := domain.NewMember(roomID, uid, domain.RoleMember, e.now().UTC())
	member.Profile = sess.Profile
	if err := e.store.AddMember(ctx, member); err != nil && !errors.Is(err, ErrConflict) {
		return err
	}

	e.mu.Lock()
	view := e.view
	e.mu.Unlock()
	if view == nil || view.RoomID != roomID {
		return nil
	}
	if members, err := e.store.RoomMembers(ctx, roomID); err == nil {
		view.rec.ReplaceMembers(members)
	}
	view.rec.SetMembership(true)
	return e.sup.Activate(e.baseCtx, view.rec, roomID, uid)
}

// LeaveRoom removes the current identity from the room. The bridge closes
// as soon as the removal commits; a failed removal leaves membership, and
// with it the bridge, intact.
func (e *Engine) LeaveRoom(ctx context.Context, roomID domain.RoomID) error {
	sess := e.sessions.Current()
	if sess.Identity == nil {
		return ErrNoSession
	}
	uid := sess.Identity.ID

	if err := e.store.RemoveMember(ctx, roomID, uid); err != nil {
		return err
	}

	e.mu.Lock()
	view := e.view
	e.mu.Unlock()
	if view != nil && view.RoomID == roomID {
		e.sup.Deactivate()
		view.rec.SetMembership(false)
		if members, err := e.store.RoomMembers(ctx, roomID); err == nil {
			view.rec.ReplaceMembers(members)
		}
	}
	return nil
}

// UploadMedia stores a blob and returns its public URL for embedding in
// message content.
func (e *Engine) UploadMedia(ctx context.Context, roomID domain.RoomID, name string, content io.Reader) (string, error) {
	if e.blobs == nil {
		return "", errors.New("blob storage not configured")
	}
	sess := e.sessions.Current()
	if sess.Identity == nil {
		return "", ErrNoSession
	}
	return e.blobs.Upload(ctx, name, content, roomID, sess.Identity.ID)
}

// ConnectionLost reports transport-level disconnects. Recovery is the
// caller's decision, typically a fresh OpenRoom.
func (e *Engine) ConnectionLost() <-chan error {
	return e.sup.ConnectionLost()
}

// Close tears down the open room and the auth listener. Every open
// bridge or listener pairs with this teardown on all exit paths.
func (e *Engine) Close() {
	e.CloseRoom()
	e.sessions.Close()
}
