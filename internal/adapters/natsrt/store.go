package natsrt

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomsync/internal/core"
	"github.com/dkeye/roomsync/internal/domain"
)

// PublishingStore decorates a RecordStore so that successful writes emit
// the matching row delta on the room's subject. Publish-after-commit, the
// same shape the rest of the chat backend uses: readers never act on a
// delta whose row is not yet durable.
type PublishingStore struct {
	core.RecordStore
	t *Transport
}

func NewPublishingStore(inner core.RecordStore, t *Transport) *PublishingStore {
	return &PublishingStore{RecordStore: inner, t: t}
}

func (s *PublishingStore) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	confirmed, err := s.RecordStore.InsertMessage(ctx, m)
	if err != nil {
		return nil, err
	}
	s.publish(messagesSubject(confirmed.RoomID), messageDelta{Action: "insert", Message: *confirmed})
	return confirmed, nil
}

func (s *PublishingStore) AddMember(ctx context.Context, m *domain.Member) error {
	if err := s.RecordStore.AddMember(ctx, m); err != nil {
		return err
	}
	s.publish(membersSubject(m.RoomID), membershipDelta{Action: "insert", RoomID: m.RoomID, UserID: m.UserID})
	return nil
}

func (s *PublishingStore) RemoveMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	if err := s.RecordStore.RemoveMember(ctx, roomID, userID); err != nil {
		return err
	}
	s.publish(membersSubject(roomID), membershipDelta{Action: "delete", RoomID: roomID, UserID: userID})
	return nil
}

func (s *PublishingStore) publish(subject string, delta any) {
	data, err := json.Marshal(delta)
	if err != nil {
		log.Error().Err(err).Str("module", "natsrt").Str("subject", subject).Msg("delta marshal")
		return
	}
	if err := s.t.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("module", "natsrt").Str("subject", subject).Msg("delta publish")
	}
}
