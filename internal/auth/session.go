package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/obs"
)

// Session is one logged-in identity, addressed by its token's session id.
type Session struct {
	ID        string         `json:"id"`
	Identity  model.Identity `json:"identity"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at t.
func (s Session) Expired(t time.Time) bool {
	return !s.ExpiresAt.IsZero() && !t.Before(s.ExpiresAt)
}

// SessionStore keeps live sessions by id.
type SessionStore interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, bool, error)
	Delete(ctx context.Context, id string) error
}

// RoleFor derives the persona from the two hardcoded credential pairs. Any other
// pair is a customer; credentials are never rejected.
func RoleFor(username, password string) model.Role {
	switch {
	case username == "admin" && password == "adminpass":
		return model.RoleAdmin
	case username == "manufacturer" && password == "manupass":
		return model.RoleManufacturer
	default:
		return model.RoleCustomer
	}
}

// Manager issues and resolves per-request session tokens.
type Manager struct {
	store  SessionStore
	signer *TokenSigner
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(store SessionStore, signer *TokenSigner, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{store: store, signer: signer, ttl: ttl, now: time.Now}
}

// Login creates a new session for username and returns it with its signed token.
// Credentials are never rejected; a blank username becomes a customer with an
// empty name. Other sessions are left untouched.
func (m *Manager) Login(ctx context.Context, username, password string) (Session, string, error) {
	username = strings.TrimSpace(username)
	now := m.now().UTC()
	s := Session{
		ID:        uuid.NewString(),
		Identity:  model.Identity{Username: username, Role: RoleFor(username, password)},
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, s); err != nil {
		return Session{}, "", fmt.Errorf("store session: %w", err)
	}
	token, err := m.signer.Sign(s)
	if err != nil {
		_ = m.store.Delete(ctx, s.ID)
		return Session{}, "", fmt.Errorf("sign session: %w", err)
	}
	obs.Logger.Info("session_login", "username", username, "role", s.Identity.Role, "session_id", s.ID)
	return s, token, nil
}

// Logout ends the session behind token. Unknown or invalid tokens are ignored.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	c, err := m.signer.Parse(token)
	if err != nil {
		return nil
	}
	if err := m.store.Delete(ctx, c.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	obs.Logger.Info("session_logout", "username", c.Username, "session_id", c.SessionID)
	return nil
}

// Current resolves token into the identity of a live session.
func (m *Manager) Current(ctx context.Context, token string) (model.Identity, bool) {
	if token == "" {
		return model.Identity{}, false
	}
	c, err := m.signer.Parse(token)
	if err != nil {
		obs.Logger.Debug("session_token_rejected", "error", err)
		return model.Identity{}, false
	}
	s, ok, err := m.store.Get(ctx, c.SessionID)
	if err != nil {
		obs.Logger.Error("session_lookup_failed", "session_id", c.SessionID, "error", err)
		return model.Identity{}, false
	}
	if !ok || s.Expired(m.now()) {
		return model.Identity{}, false
	}
	return s.Identity, true
}
