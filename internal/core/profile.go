package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomsync/internal/domain"
)

// ProfileResolver fetches or lazily creates the durable profile record for
// an authenticated identity.
type ProfileResolver struct {
	store RecordStore
	now   func() time.Time
}

func NewProfileResolver(store RecordStore) *ProfileResolver {
	return &ProfileResolver{store: store, now: time.Now}
}

// Fetch reads the profile by id, ErrNotFound when absent.
func (r *ProfileResolver) Fetch(ctx context.Context, id domain.UserID) (*domain.Profile, error) {
	return r.store.ProfileByID(ctx, id)
}

// Resolve returns the identity's profile, creating one seeded from the
// identity claims on first sign-in. A create that races a concurrent
// create for the same id is treated as success and re-fetched.
func (r *ProfileResolver) Resolve(ctx context.Context, id domain.Identity) (*domain.Profile, error) {
	p, err := r.store.ProfileByID(ctx, id.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: fetch: %v", ErrProfileResolution, err)
	}

	fresh, err := domain.NewProfile(id, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: seed: %v", ErrProfileResolution, err)
	}
	if err := r.store.CreateProfile(ctx, fresh); err != nil {
		if !errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: create: %v", ErrProfileResolution, err)
		}
		log.Debug().Str("module", "core.profile").Str("user", string(id.ID)).Msg("create raced, re-fetching")
		p, err := r.store.ProfileByID(ctx, id.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: re-fetch after conflict: %v", ErrProfileResolution, err)
		}
		return p, nil
	}
	log.Info().Str("module", "core.profile").Str("user", string(id.ID)).Str("username", fresh.Username).Msg("profile created")
	return fresh, nil
}
