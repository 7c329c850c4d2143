// Package pgstore implements the core RecordStore port over Postgres.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dkeye/roomsync/internal/core"
	"github.com/dkeye/roomsync/internal/domain"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var _ core.RecordStore = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) ProfileByID(ctx context.Context, id domain.UserID) (*domain.Profile, error) {
	var p domain.Profile
	err := s.db.QueryRowContext(ctx, `
		select id, username, coalesce(full_name, ''), coalesce(avatar_url, ''), created_at
		from profiles where id = $1
	`, string(id)).Scan(&p.ID, &p.Username, &p.FullName, &p.AvatarURL, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile by id: %w", err)
	}
	return &p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *domain.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		insert into profiles (id, username, full_name, avatar_url, created_at)
		values ($1, $2, $3, $4, $5)
	`, string(p.ID), p.Username, p.FullName, p.AvatarURL, p.CreatedAt)
	if isUniqueViolation(err) {
		return core.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (s *Store) RoomByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var r domain.Room
	err := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(subject, ''), coalesce(description, ''),
		       creator_id, coalesce(max_members, 0), created_at
		from rooms where id = $1
	`, string(id)).Scan(&r.ID, &r.Name, &r.Subject, &r.Description, &r.CreatorID, &r.MaxMembers, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("room by id: %w", err)
	}
	return &r, nil
}

func (s *Store) RoomMembers(ctx context.Context, roomID domain.RoomID) ([]domain.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		select m.id, m.room_id, m.user_id, m.role, m.joined_at,
		       p.id, p.username, coalesce(p.full_name, ''), coalesce(p.avatar_url, ''), p.created_at
		from room_members m
		join profiles p on p.id = m.user_id
		where m.room_id = $1
		order by m.joined_at asc
	`, string(roomID))
	if err != nil {
		return nil, fmt.Errorf("room members: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		var p domain.Profile
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Role, &m.JoinedAt,
			&p.ID, &p.Username, &p.FullName, &p.AvatarURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Profile = &p
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) RoomMessages(ctx context.Context, roomID domain.RoomID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		select msg.id, msg.room_id, msg.user_id, msg.content, msg.created_at,
		       p.id, p.username, coalesce(p.full_name, ''), coalesce(p.avatar_url, ''), p.created_at
		from room_messages msg
		left join profiles p on p.id = msg.user_id
		where msg.room_id = $1
		order by msg.created_at asc, msg.id asc
	`, string(roomID))
	if err != nil {
		return nil, fmt.Errorf("room messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var pid sql.NullString
		var p domain.Profile
		var pFullName, pAvatar sql.NullString
		var pCreated sql.NullTime
		var pUsername sql.NullString
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Content, &m.CreatedAt,
			&pid, &pUsername, &pFullName, &pAvatar, &pCreated); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if pid.Valid {
			p = domain.Profile{
				ID:        domain.UserID(pid.String),
				Username:  pUsername.String,
				FullName:  pFullName.String,
				AvatarURL: pAvatar.String,
				CreatedAt: pCreated.Time,
			}
			m.Profile = &p
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *Store) IsMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from room_members where room_id = $1 and user_id = $2)
	`, string(roomID), string(userID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return exists, nil
}

func (s *Store) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	confirmed := *m
	err := s.db.QueryRowContext(ctx, `
		insert into room_messages (id, room_id, user_id, content, created_at)
		values ($1, $2, $3, $4, $5)
		returning created_at
	`, string(m.ID), string(m.RoomID), string(m.UserID), m.Content, m.CreatedAt).Scan(&confirmed.CreatedAt)
	if isUniqueViolation(err) {
		return nil, core.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &confirmed, nil
}

func (s *Store) AddMember(ctx context.Context, m *domain.Member) error {
	_, err := s.db.ExecContext(ctx, `
		insert into room_members (id, room_id, user_id, role, joined_at)
		values ($1, $2, $3, $4, $5)
	`, string(m.ID), string(m.RoomID), string(m.UserID), string(m.Role), m.JoinedAt)
	if isUniqueViolation(err) {
		return core.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	_, err := s.db.ExecContext(ctx, `
		delete from room_members where room_id = $1 and user_id = $2
	`, string(roomID), string(userID))
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
