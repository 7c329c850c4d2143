package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomsync/internal/domain"
	"github.com/dkeye/roomsync/internal/obs"
)

// DefaultInitTimeout bounds the whole initialization sequence: session
// fetch plus profile resolution.
const DefaultInitTimeout = 30 * time.Second

type sessionPhase int

const (
	phaseUninitialized sessionPhase = iota
	phaseInitializing
	phaseReady
)

// SessionState is a copy of the store's observable state. Lifecycle errors
// land in Err as a human-readable string; they are never returned as
// errors past the store boundary.
type SessionState struct {
	Identity *domain.Identity `json:"identity,omitempty"`
	Profile  *domain.Profile  `json:"profile,omitempty"`
	Loading  bool             `json:"loading"`
	Err      string           `json:"error,omitempty"`
}

// SessionStore holds the current identity and profile and owns the
// one-time initialization sequence plus the live auth-event listener.
//
// The listener is logically concurrent with initialization. Two rules keep
// that race harmless: a listener event only forces Loading=false after
// initialization has completed at least once, and a generation counter
// drops stale deferred work (an init result or profile resolution that a
// later sign-out has already invalidated).
type SessionStore struct {
	auth        AuthAuthority
	resolver    *ProfileResolver
	initTimeout time.Duration

	initOnce sync.Once
	baseCtx  context.Context

	mu       sync.Mutex
	phase    sessionPhase
	identity *domain.Identity
	profile  *domain.Profile
	errMsg   string
	gen      int
	unsub    func()
}

type SessionOption func(*SessionStore)

// WithInitTimeout overrides the init deadline.
func WithInitTimeout(d time.Duration) SessionOption {
	return func(s *SessionStore) { s.initTimeout = d }
}

func NewSessionStore(auth AuthAuthority, resolver *ProfileResolver, opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		auth:        auth,
		resolver:    resolver,
		initTimeout: DefaultInitTimeout,
		baseCtx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init runs the initialization sequence exactly once per store lifetime;
// repeat calls return immediately. It blocks until the sequence completes
// or the init deadline fires. On timeout the pending fetch is not
// cancelled at the transport level, only its effect on state is abandoned.
func (s *SessionStore) Init(ctx context.Context) {
	s.initOnce.Do(func() { s.init(ctx) })
}

type initResult struct {
	identity *domain.Identity
	profile  *domain.Profile
	err      error
}

func (s *SessionStore) init(ctx context.Context) {
	s.baseCtx = ctx

	// The listener registers once, independent of the fetch below, and
	// may fire before, during, or after it.
	unsub, err := s.auth.OnStateChange(s.handleAuthEvent)
	if err != nil {
		log.Error().Err(err).Str("module", "core.session").Msg("auth listener registration failed")
	}

	s.mu.Lock()
	s.unsub = unsub
	s.phase = phaseInitializing
	gen := s.gen
	s.mu.Unlock()

	done := make(chan initResult, 1)
	go func() {
		sess, err := s.auth.CurrentSession(ctx)
		if err != nil {
			done <- initResult{err: err}
			return
		}
		if sess == nil {
			done <- initResult{}
			return
		}
		id := sess.Identity
		profile, err := s.resolver.Resolve(ctx, id)
		if err != nil {
			done <- initResult{identity: &id, err: err}
			return
		}
		done <- initResult{identity: &id, profile: profile}
	}()

	timer := time.NewTimer(s.initTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		s.finishInit(gen, res)
	case <-timer.C:
		log.Error().Str("module", "core.session").Dur("timeout", s.initTimeout).Msg("init timed out")
		s.abortInit(gen, msgInitTimeout)
	case <-ctx.Done():
		s.abortInit(gen, msgInitFailure)
	}
}

func (s *SessionStore) finishInit(gen int, res initResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phaseReady
	if gen != s.gen {
		// a listener event (sign-out) superseded this result
		return
	}
	switch {
	case res.err == nil:
		s.identity = res.identity
		s.profile = res.profile
		s.errMsg = ""
	case errors.Is(res.err, ErrProfileResolution):
		s.identity = res.identity
		s.profile = nil
		s.errMsg = msgProfileLoad
		log.Error().Err(res.err).Str("module", "core.session").Msg("init profile resolution failed")
	default:
		s.errMsg = msgInitFailure
		log.Error().Err(res.err).Str("module", "core.session").Msg("init session fetch failed")
	}
}

func (s *SessionStore) abortInit(gen int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phaseReady
	if gen == s.gen {
		// invalidate the straggler's deferred effects
		s.gen++
		s.errMsg = msg
	}
}

func (s *SessionStore) handleAuthEvent(ev AuthEvent) {
	obs.AuthEvents.WithLabelValues(string(ev.Kind)).Inc()

	s.mu.Lock()
	if ev.Session == nil {
		// any event reporting no session clears the profile immediately;
		// Loading is derived from the phase, so a listener event cannot
		// end the loading state before init itself has completed
		s.identity = nil
		s.profile = nil
		s.gen++
		s.mu.Unlock()
		log.Info().Str("module", "core.session").Str("kind", string(ev.Kind)).Msg("session cleared")
		return
	}
	id := ev.Session.Identity
	s.identity = &id
	gen := s.gen
	ctx := s.baseCtx
	s.mu.Unlock()

	// Deferred off the handler so the event source is never blocked by a
	// profile round trip.
	go func() {
		profile, err := s.resolver.Resolve(ctx, id)
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return
		}
		if s.identity == nil || s.identity.ID != id.ID {
			// the init result or a later event replaced the identity while
			// this resolve was in flight; a profile never outlives its identity
			return
		}
		if err != nil {
			s.errMsg = msgProfileLoad
			log.Error().Err(err).Str("module", "core.session").Str("user", string(id.ID)).Msg("profile resolution failed")
		} else {
			s.profile = profile
			s.errMsg = ""
		}
	}()
}

// RefreshProfile re-fetches (not upserts) the current identity's profile.
// No-op without an identity; failures surface through state.
func (s *SessionStore) RefreshProfile(ctx context.Context) {
	s.mu.Lock()
	id := s.identity
	s.mu.Unlock()
	if id == nil {
		return
	}
	profile, err := s.resolver.Fetch(ctx, id.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errMsg = msgProfileRefresh
		log.Error().Err(err).Str("module", "core.session").Str("user", string(id.ID)).Msg("profile refresh failed")
		return
	}
	s.profile = profile
	s.errMsg = ""
}

// SignOut calls the external sign-out and clears local state regardless of
// its outcome.
func (s *SessionStore) SignOut(ctx context.Context) {
	if err := s.auth.SignOut(ctx); err != nil {
		log.Error().Err(err).Str("module", "core.session").Msg("external sign-out failed, clearing local state anyway")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	s.profile = nil
	s.errMsg = ""
	s.gen++
}

// Current returns a copy of the observable state.
func (s *SessionStore) Current() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionState{
		Identity: s.identity,
		Profile:  s.profile,
		Loading:  s.phase != phaseReady,
		Err:      s.errMsg,
	}
}

// Close unregisters the auth listener. Safe to call more than once.
func (s *SessionStore) Close() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
