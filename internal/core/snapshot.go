package core

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dkeye/roomsync/internal/domain"
	"github.com/dkeye/roomsync/internal/obs"
)

// Snapshot is the coordinated initial fetch for one room.
type Snapshot struct {
	Room     domain.Room
	Members  []domain.Member
	Messages []domain.Message
	IsMember bool
}

// SnapshotLoader fetches a room's initial bundle as one all-or-nothing
// batch. Partial success is not supported: a room view is never shown
// over incomplete data.
type SnapshotLoader struct {
	store RecordStore
}

func NewSnapshotLoader(store RecordStore) *SnapshotLoader {
	return &SnapshotLoader{store: store}
}

// Load issues the four reads concurrently and waits for all of them.
// A missing room row returns ErrRoomNotFound; any other failure returns
// ErrSnapshotLoad.
func (l *SnapshotLoader) Load(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (*Snapshot, error) {
	var snap Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		room, err := l.store.RoomByID(gctx, roomID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrRoomNotFound
			}
			return fmt.Errorf("room: %w", err)
		}
		snap.Room = *room
		return nil
	})
	g.Go(func() error {
		members, err := l.store.RoomMembers(gctx, roomID)
		if err != nil {
			return fmt.Errorf("members: %w", err)
		}
		snap.Members = members
		return nil
	})
	g.Go(func() error {
		messages, err := l.store.RoomMessages(gctx, roomID)
		if err != nil {
			return fmt.Errorf("messages: %w", err)
		}
		snap.Messages = messages
		return nil
	})
	g.Go(func() error {
		isMember, err := l.store.IsMember(gctx, roomID, userID)
		if err != nil {
			return fmt.Errorf("membership: %w", err)
		}
		snap.IsMember = isMember
		return nil
	})

	if err := g.Wait(); err != nil {
		obs.SnapshotFailures.Inc()
		if errors.Is(err, ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrSnapshotLoad, err)
	}
	return &snap, nil
}
