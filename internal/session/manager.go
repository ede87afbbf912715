package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Manager creates holders, binds them to the session cookie and restores
// them from the durable store on incoming requests.
type Manager struct {
	store      *Store
	platform   Platform
	logger     *slog.Logger
	cookieName string
	secure     bool
	group      singleflight.Group
}

// NewManager constructs a Manager.
func NewManager(store *Store, platform Platform, logger *slog.Logger, cookieName string, secure bool) *Manager {
	return &Manager{
		store:      store,
		platform:   platform,
		logger:     logger,
		cookieName: cookieName,
		secure:     secure,
	}
}

// NewHolder returns an unauthenticated holder with a fresh session key.
// Login always runs on a fresh holder so an attacker-supplied cookie can
// never name an authenticated session.
func (m *Manager) NewHolder() *Holder {
	return m.holder(m.generateKey())
}

// Load resolves the request's session. With no cookie the session is
// confirmed unauthenticated; with a cookie the holder is restored from the
// durable store before Load returns, so callers never observe an undecided
// session.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Holder, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return m.NewHolder(), nil
		}
		return nil, err
	}
	h := m.holder(cookie.Value)
	if err := h.Restore(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// WriteCookie binds the holder's key to the client.
func (m *Manager) WriteCookie(w http.ResponseWriter, h *Holder) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    h.Key(),
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(m.store.TTL()),
	})
}

// ClearCookie removes the session cookie; together with the cleared store it
// is the gateway's navigation-to-login signal.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// CookieName returns the cookie identifier used for sessions.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// Store exposes the durable store, used by the fan-out worker.
func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) holder(key string) *Holder {
	return &Holder{
		key:      key,
		state:    StateUnauthenticated,
		store:    m.store,
		platform: m.platform,
		logger:   m.logger,
		group:    &m.group,
	}
}

func (m *Manager) generateKey() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
