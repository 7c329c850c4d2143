package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomsync/internal/domain"
)

// Supervisor guarantees at most one live bridge per (room, identity):
// the prior bridge always closes before a new one opens, membership loss
// closes it immediately, and session end closes everything. It does not
// reconnect after a transport loss; it surfaces the loss and leaves
// recovery (a fresh snapshot load plus bridge open) to the caller.
type Supervisor struct {
	rt    Realtime
	store RecordStore

	mu            sync.Mutex
	bridge        *Bridge
	roomID        domain.RoomID
	user          domain.UserID
	offDisconnect func()

	lost chan error
}

func NewSupervisor(rt Realtime, store RecordStore) *Supervisor {
	return &Supervisor{
		rt:    rt,
		store: store,
		lost:  make(chan error, 1),
	}
}

// Activate opens a bridge for the room, closing any prior bridge first.
func (s *Supervisor) Activate(ctx context.Context, rec *Reconciler, roomID domain.RoomID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()

	// a loss reported against the previous bridge must not be delivered
	// to the new room's consumer
	select {
	case <-s.lost:
	default:
	}

	bridge, err := OpenBridge(ctx, s.rt, s.store, rec, roomID, user, s.deactivateIf)
	if err != nil {
		return err
	}
	s.bridge = bridge
	s.roomID = roomID
	s.user = user
	s.offDisconnect = s.rt.OnDisconnect(func(cause error) {
		log.Error().Err(cause).Str("module", "core.supervisor").Str("room", string(roomID)).Msg("realtime connection lost")
		select {
		case s.lost <- fmt.Errorf("%w: %v", ErrConnectionLost, cause):
		default:
		}
	})
	return nil
}

// Deactivate closes the current bridge, if any. Idempotent.
func (s *Supervisor) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// deactivateIf closes b only if it is still the current bridge, so a
// stale bridge's late membership event cannot tear down its successor.
func (s *Supervisor) deactivateIf(b *Bridge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bridge == b {
		s.closeLocked()
	} else {
		b.Close()
	}
}

func (s *Supervisor) closeLocked() {
	if s.offDisconnect != nil {
		s.offDisconnect()
		s.offDisconnect = nil
	}
	if s.bridge != nil {
		s.bridge.Close()
		s.bridge = nil
	}
}

// Active reports whether a bridge is currently open.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge != nil
}

// ConnectionLost delivers transport-loss notifications, coalesced.
func (s *Supervisor) ConnectionLost() <-chan error {
	return s.lost
}
