package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomsync/internal/domain"
	"github.com/dkeye/roomsync/internal/obs"
)

// Bridge subscribes to one room's message and membership topics and
// translates incoming change events into merge operations against the
// reconciler. It exists only while the current identity is a member of
// the room; the supervisor enforces that gate.
type Bridge struct {
	roomID domain.RoomID
	self   domain.UserID
	store  RecordStore
	rec    *Reconciler

	// called when a membership event reveals the local user is no longer
	// a member; the supervisor closes the bridge in response
	onMembershipLost func(*Bridge)

	ctx       context.Context
	closeOnce sync.Once
	subs      []Subscription
}

// OpenBridge subscribes both topics for the room. On any subscription
// failure the partial subscriptions are torn down and ErrSubscription is
// returned; a half-wired bridge is never left behind.
func OpenBridge(ctx context.Context, rt Realtime, store RecordStore, rec *Reconciler, roomID domain.RoomID, self domain.UserID, onMembershipLost func(*Bridge)) (*Bridge, error) {
	b := &Bridge{
		roomID:           roomID,
		self:             self,
		store:            store,
		rec:              rec,
		onMembershipLost: onMembershipLost,
		ctx:              ctx,
	}

	msgSub, err := rt.SubscribeMessages(roomID, b.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("%w: messages topic: %v", ErrSubscription, err)
	}
	b.subs = append(b.subs, msgSub)

	memSub, err := rt.SubscribeMembership(roomID, b.handleMembership)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("%w: membership topic: %v", ErrSubscription, err)
	}
	b.subs = append(b.subs, memSub)

	obs.BridgeOpens.Inc()
	log.Info().Str("module", "core.bridge").Str("room", string(roomID)).Str("user", string(self)).Msg("bridge opened")
	return b, nil
}

// Close unsubscribes both topics. Safe to call multiple times.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		for _, sub := range b.subs {
			if err := sub.Unsubscribe(); err != nil {
				log.Error().Err(err).Str("module", "core.bridge").Str("room", string(b.roomID)).Msg("unsubscribe")
			}
		}
		obs.BridgeCloses.Inc()
		log.Info().Str("module", "core.bridge").Str("room", string(b.roomID)).Msg("bridge closed")
	})
}

func (b *Bridge) handleMessage(ev MessageEvent) {
	if ev.Kind != ChangeInsert {
		return
	}
	m := ev.Message

	// Live payloads carry no profile join. Do the point read here; if it
	// fails (sender already left, store hiccup) the message still lands
	// with an empty profile. Delivery beats display completeness.
	if m.Profile == nil {
		profile, err := b.store.ProfileByID(b.ctx, m.UserID)
		if err != nil {
			log.Debug().Err(err).Str("module", "core.bridge").Str("user", string(m.UserID)).Msg("profile backfill failed, appending without it")
		} else {
			m.Profile = profile
		}
	}
	b.rec.AppendMessage(m)
}

func (b *Bridge) handleMembership(ev MembershipEvent) {
	// Membership events are low-frequency and the member list is small:
	// re-fetch wholesale instead of diffing three event kinds.
	members, err := b.store.RoomMembers(b.ctx, b.roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "core.bridge").Str("room", string(b.roomID)).Msg("member re-fetch failed, keeping previous list")
	} else {
		b.rec.ReplaceMembers(members)
	}

	if b.affectsSelf(ev) {
		isMember, err := b.store.IsMember(b.ctx, b.roomID, b.self)
		if err != nil {
			log.Error().Err(err).Str("module", "core.bridge").Str("room", string(b.roomID)).Msg("membership re-check failed")
			return
		}
		b.rec.SetMembership(isMember)
		if !isMember && b.onMembershipLost != nil {
			b.onMembershipLost(b)
		}
	}
}

func (b *Bridge) affectsSelf(ev MembershipEvent) bool {
	// Delete payloads may carry only the keys; an empty user id means we
	// cannot rule ourselves out, so re-check.
	return ev.UserID == "" || ev.UserID == b.self
}
