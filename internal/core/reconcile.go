package core

import (
	"sort"
	"sync"

	"github.com/dkeye/roomsync/internal/domain"

	"github.com/dkeye/roomsync/internal/obs"
)

// Reconciler merges the snapshot, live events, and confirmed local sends
// into one ordered, deduplicated room view. It is the only mutator of the
// room's local message and member lists; every merge operation is
// idempotent so that the order in which pending operations resolve does
// not matter.
type Reconciler struct {
	mu       sync.RWMutex
	room     domain.Room
	messages []domain.Message
	seen     map[domain.MessageID]struct{}
	members  []domain.Member
	isMember bool

	// coalescing change signal for view consumers
	updates chan struct{}
}

// RoomState is a copy of the merged view, safe to hand out.
type RoomState struct {
	Room     domain.Room      `json:"room"`
	Members  []domain.Member  `json:"members"`
	Messages []domain.Message `json:"messages"`
	IsMember bool             `json:"is_member"`
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		seen:    make(map[domain.MessageID]struct{}),
		updates: make(chan struct{}, 1),
	}
}

// SetSnapshot installs the initial fetch. Messages are sorted explicitly
// by (created_at, id); later live appends keep that order.
func (r *Reconciler) SetSnapshot(snap *Snapshot) {
	msgs := make([]domain.Message, len(snap.Messages))
	copy(msgs, snap.Messages)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Before(&msgs[j]) })

	r.mu.Lock()
	r.room = snap.Room
	r.messages = msgs
	r.seen = make(map[domain.MessageID]struct{}, len(msgs))
	for i := range msgs {
		r.seen[msgs[i].ID] = struct{}{}
	}
	r.members = append([]domain.Member(nil), snap.Members...)
	r.isMember = snap.IsMember
	r.mu.Unlock()
	r.notify()
}

// AppendMessage merges one message into the history. A duplicate id is a
// no-op: the same row may arrive from the snapshot, the live topic, and a
// confirmed send in any order. Returns whether the view changed.
func (r *Reconciler) AppendMessage(m domain.Message) bool {
	r.mu.Lock()
	if _, dup := r.seen[m.ID]; dup {
		r.mu.Unlock()
		obs.DuplicatesDropped.Inc()
		return false
	}
	r.seen[m.ID] = struct{}{}

	// The live topic is ordered, so the common case is a tail append.
	i := len(r.messages)
	for i > 0 && m.Before(&r.messages[i-1]) {
		i--
	}
	r.messages = append(r.messages, domain.Message{})
	copy(r.messages[i+1:], r.messages[i:])
	r.messages[i] = m
	r.mu.Unlock()

	obs.MessagesMerged.Inc()
	r.notify()
	return true
}

// ReplaceMembers swaps in a freshly fetched member list wholesale. The
// fresh list is authoritative; no partial list is ever observable.
func (r *Reconciler) ReplaceMembers(fresh []domain.Member) {
	r.mu.Lock()
	r.members = append([]domain.Member(nil), fresh...)
	r.mu.Unlock()
	obs.MemberRefreshes.Inc()
	r.notify()
}

func (r *Reconciler) SetMembership(isMember bool) {
	r.mu.Lock()
	changed := r.isMember != isMember
	r.isMember = isMember
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

func (r *Reconciler) IsMember() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isMember
}

// State returns a copy of the merged view.
func (r *Reconciler) State() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoomState{
		Room:     r.room,
		Members:  append([]domain.Member(nil), r.members...),
		Messages: append([]domain.Message(nil), r.messages...),
		IsMember: r.isMember,
	}
}

// Updates signals after every visible change. The channel coalesces: a
// slow consumer sees at least one signal for any burst of changes.
func (r *Reconciler) Updates() <-chan struct{} {
	return r.updates
}

func (r *Reconciler) notify() {
	select {
	case r.updates <- struct{}{}:
	default:
	}
}
