// Package authkc implements the core AuthAuthority port against a
// Keycloak-style OIDC provider. Tokens are validated locally against the
// realm's JWKS; a watcher goroutine turns token expiry into a signed-out
// state change so the session store sees the same event stream a browser
// client would.
package authkc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomsync/internal/core"
	"github.com/dkeye/roomsync/internal/domain"
)

type tokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	Picture           string `json:"picture"`
}

type Authority struct {
	jwks   *keyfunc.JWKS
	issuer string

	mu        sync.Mutex
	token     string
	session   *core.Session
	expiresAt time.Time
	nextID    int
	listeners map[int]func(core.AuthEvent)

	stopWatch chan struct{}
	watchOnce sync.Once
}

// New fetches and caches the realm JWKS. issuerOverride replaces the
// derived issuer when the browser-facing URL differs from the internal
// one.
func New(ctx context.Context, baseURL, realm, issuerOverride string) (*Authority, error) {
	jwksURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", baseURL, realm)
	issuer := fmt.Sprintf("%s/realms/%s", baseURL, realm)
	if issuerOverride != "" {
		issuer = issuerOverride
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   5 * time.Minute,
		RefreshRateLimit:  time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error().Err(err).Str("module", "authkc").Msg("jwks refresh")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}

	a := &Authority{
		jwks:      jwks,
		issuer:    issuer,
		listeners: make(map[int]func(core.AuthEvent)),
		stopWatch: make(chan struct{}),
	}
	go a.watchExpiry()
	return a, nil
}

// SetToken installs a bearer token as the current session. A valid token
// emits a signed-in event; an empty token behaves like SignOut.
func (a *Authority) SetToken(token string) error {
	if token == "" {
		a.clear(core.AuthSignedOut)
		return nil
	}
	session, expiresAt, err := a.validate(token)
	if err != nil {
		return err
	}
	a.mu.Lock()
	refreshed := a.session != nil && a.session.Identity.ID == session.Identity.ID
	a.token = token
	a.session = session
	a.expiresAt = expiresAt
	a.mu.Unlock()

	kind := core.AuthSignedIn
	if refreshed {
		kind = core.AuthTokenRefreshed
	}
	a.emit(core.AuthEvent{Kind: kind, Session: session})
	return nil
}

func (a *Authority) validate(token string) (*core.Session, time.Time, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, a.jwks.Keyfunc,
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("token validation: %w", err)
	}
	if !parsed.Valid {
		return nil, time.Time{}, fmt.Errorf("token not valid")
	}
	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}
	session := &core.Session{Identity: domain.Identity{
		ID:        domain.UserID(claims.Subject),
		Email:     claims.Email,
		Name:      name,
		AvatarURL: claims.Picture,
	}}
	return session, claims.ExpiresAt.Time, nil
}

func (a *Authority) CurrentSession(ctx context.Context) (*core.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil, nil
	}
	if !a.expiresAt.IsZero() && time.Now().After(a.expiresAt) {
		return nil, nil
	}
	s := *a.session
	return &s, nil
}

func (a *Authority) OnStateChange(handler func(core.AuthEvent)) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = handler
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}, nil
}

func (a *Authority) SignOut(ctx context.Context) error {
	a.clear(core.AuthSignedOut)
	return nil
}

// Close stops the expiry watcher and the JWKS refresh goroutine.
func (a *Authority) Close() {
	a.watchOnce.Do(func() { close(a.stopWatch) })
	a.jwks.EndBackground()
}

func (a *Authority) clear(kind core.AuthEventKind) {
	a.mu.Lock()
	hadSession := a.session != nil
	a.token = ""
	a.session = nil
	a.expiresAt = time.Time{}
	a.mu.Unlock()
	if hadSession {
		a.emit(core.AuthEvent{Kind: kind, Session: nil})
	}
}

func (a *Authority) emit(ev core.AuthEvent) {
	a.mu.Lock()
	handlers := make([]func(core.AuthEvent), 0, len(a.listeners))
	for _, h := range a.listeners {
		handlers = append(handlers, h)
	}
	a.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (a *Authority) watchExpiry() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopWatch:
			return
		case <-ticker.C:
			a.mu.Lock()
			expired := a.session != nil && !a.expiresAt.IsZero() && time.Now().After(a.expiresAt)
			a.mu.Unlock()
			if expired {
				log.Info().Str("module", "authkc").Msg("token expired")
				a.clear(core.AuthSignedOut)
			}
		}
	}
}
