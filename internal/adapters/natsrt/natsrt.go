// Package natsrt adapts NATS to the core Realtime port. One subject pair
// per room carries row-level JSON deltas:
//
//	chat.room.{id}.messages  message inserts
//	chat.room.{id}.members   membership inserts/updates/deletes
//
// Delivery is at-least-once per subject and ordered within a subject,
// which is exactly what the reconciler's idempotent merge assumes.
package natsrt

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomsync/internal/core"
	"github.com/dkeye/roomsync/internal/domain"
)

func messagesSubject(roomID domain.RoomID) string {
	return fmt.Sprintf("chat.room.%s.messages", roomID)
}

func membersSubject(roomID domain.RoomID) string {
	return fmt.Sprintf("chat.room.%s.members", roomID)
}

// messageDelta is the wire form on the messages subject.
type messageDelta struct {
	Action  string         `json:"action"`
	Message domain.Message `json:"message"`
}

// membershipDelta is the wire form on the members subject. Only keys are
// carried; consumers re-fetch the member list.
type membershipDelta struct {
	Action string        `json:"action"`
	RoomID domain.RoomID `json:"room"`
	UserID domain.UserID `json:"user"`
}

type Transport struct {
	nc *nats.Conn

	mu     sync.Mutex
	nextID int
	onLost map[int]func(error)
}

// Connect dials NATS and installs the disconnect fan-out. nats.go keeps
// its own reconnect buffering; missed deltas are not replayed here, the
// loss is surfaced and the caller reloads the snapshot.
func Connect(url, name string) (*Transport, error) {
	t := &Transport{onLost: make(map[int]func(error))}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.fanoutDisconnect(err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Str("module", "natsrt").Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	t.nc = nc
	return t, nil
}

// NewTransport wraps an existing connection (tests, embedded servers).
func NewTransport(nc *nats.Conn) *Transport {
	return &Transport{nc: nc, onLost: make(map[int]func(error))}
}

func (t *Transport) Close() {
	t.nc.Drain()
}

func (t *Transport) SubscribeMessages(roomID domain.RoomID, handler func(core.MessageEvent)) (core.Subscription, error) {
	sub, err := t.nc.Subscribe(messagesSubject(roomID), func(m *nats.Msg) {
		var delta messageDelta
		if err := json.Unmarshal(m.Data, &delta); err != nil {
			log.Error().Err(err).Str("module", "natsrt").Str("subject", m.Subject).Msg("bad message delta")
			return
		}
		handler(core.MessageEvent{Kind: actionKind(delta.Action), Message: delta.Message})
	})
	if err != nil {
		return nil, err
	}
	return &subscription{sub: sub}, nil
}

func (t *Transport) SubscribeMembership(roomID domain.RoomID, handler func(core.MembershipEvent)) (core.Subscription, error) {
	sub, err := t.nc.Subscribe(membersSubject(roomID), func(m *nats.Msg) {
		var delta membershipDelta
		if err := json.Unmarshal(m.Data, &delta); err != nil {
			log.Error().Err(err).Str("module", "natsrt").Str("subject", m.Subject).Msg("bad membership delta")
			return
		}
		handler(core.MembershipEvent{Kind: actionKind(delta.Action), RoomID: delta.RoomID, UserID: delta.UserID})
	})
	if err != nil {
		return nil, err
	}
	return &subscription{sub: sub}, nil
}

func (t *Transport) OnDisconnect(handler func(error)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.onLost[id] = handler
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.onLost, id)
	}
}

func (t *Transport) fanoutDisconnect(err error) {
	t.mu.Lock()
	handlers := make([]func(error), 0, len(t.onLost))
	for _, h := range t.onLost {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()
	log.Error().Err(err).Str("module", "natsrt").Msg("disconnected")
	for _, h := range handlers {
		h(err)
	}
}

func actionKind(action string) core.ChangeKind {
	switch action {
	case "update":
		return core.ChangeUpdate
	case "delete":
		return core.ChangeDelete
	default:
		return core.ChangeInsert
	}
}

// subscription wraps a NATS subscription with an idempotent Unsubscribe.
type subscription struct {
	sub  *nats.Subscription
	once sync.Once
}

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() { err = s.sub.Unsubscribe() })
	return err
}
