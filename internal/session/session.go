// Package session holds snapshots of the authenticated user.
//
// A Session is a copy taken at establish time, not a view of the identity
// store. Ledger operations return the updated identity.User; callers hand
// it to Establish or Resync to keep the snapshot in step.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/viralscript/viralscript/internal/identity"
)

// ErrNoSession is returned by Store.Get when nothing is stored under the key.
var ErrNoSession = errors.New("no session")

const localKey = "local"

// Session is the denormalized snapshot of the current caller.
type Session struct {
	User          identity.User `json:"user"`
	EstablishedAt time.Time     `json:"established_at"`
}

// Store keeps snapshots by key.
type Store interface {
	Get(ctx context.Context, key string) (Session, error)
	Put(ctx context.Context, key string, s Session) error
	Delete(ctx context.Context, key string) error
}

// Manager owns one session slot.
type Manager struct {
	store Store
	key   string
	now   func() time.Time
}

// NewLocal returns the process-scoped manager: a single slot kept in memory.
func NewLocal() *Manager {
	return &Manager{store: NewMemoryStore(), key: localKey, now: time.Now}
}

// Establish stores a copy of user as the current session, replacing any
// prior one.
func (m *Manager) Establish(ctx context.Context, user identity.User) (Session, error) {
	s := Session{User: user, EstablishedAt: m.now().UTC()}
	if err := m.store.Put(ctx, m.key, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Current returns the stored copy; ok is false when no session is established.
func (m *Manager) Current(ctx context.Context) (Session, bool, error) {
	s, err := m.store.Get(ctx, m.key)
	if errors.Is(err, ErrNoSession) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

// Teardown clears the session.
func (m *Manager) Teardown(ctx context.Context) error {
	return m.store.Delete(ctx, m.key)
}

// Resync re-establishes the session with user if the session belongs to the
// same user id. It reports whether the snapshot was replaced.
func (m *Manager) Resync(ctx context.Context, user identity.User) (bool, error) {
	current, ok, err := m.Current(ctx)
	if err != nil || !ok || current.User.ID != user.ID {
		return false, err
	}
	if _, err := m.Establish(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

// Registry hands out one Manager per client token for multi-client servers.
// Tokens are random and opaque; they are not signed.
type Registry struct {
	store Store
	now   func() time.Time
}

// NewRegistry builds a registry over store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// Open mints a token and establishes a session for user under it.
func (r *Registry) Open(ctx context.Context, user identity.User) (string, Session, error) {
	token := uuid.NewString()
	s, err := r.For(token).Establish(ctx, user)
	if err != nil {
		return "", Session{}, err
	}
	return token, s, nil
}

// For returns the manager for token.
func (r *Registry) For(token string) *Manager {
	return &Manager{store: r.store, key: token, now: r.now}
}
