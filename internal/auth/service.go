// Package auth runs the login flows: one-time code, federated sign-in and
// logout. It composes the code broker, the identity store and the session
// registry.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/otp"
	"github.com/viralscript/viralscript/internal/session"
)

// Service orchestrates sign-in.
type Service struct {
	broker     *otp.Broker
	identities *identity.Service
	sessions   *session.Registry
}

// NewService wires the login flow.
func NewService(broker *otp.Broker, identities *identity.Service, sessions *session.Registry) *Service {
	return &Service{broker: broker, identities: identities, sessions: sessions}
}

// Login is the outcome of a successful sign-in.
type Login struct {
	Token   string
	Session session.Session
}

// RequestCode issues a code for the normalized identifier and returns it so
// development builds can echo it back.
func (s *Service) RequestCode(ctx context.Context, raw string) (identity.Identifier, string, error) {
	id, err := identity.ParseIdentifier(raw)
	if err != nil {
		return identity.Identifier{}, "", err
	}
	code, err := s.broker.RequestCode(ctx, id.Value)
	if err != nil {
		return identity.Identifier{}, "", err
	}
	return id, code, nil
}

// Verify checks the code, then finds or creates the user and opens a
// session. A duplicate-device rejection happens after the code is consumed.
func (s *Service) Verify(ctx context.Context, raw, code string) (Login, error) {
	id, err := identity.ParseIdentifier(raw)
	if err != nil {
		return Login{}, otp.ErrInvalidOrExpired
	}
	if err := s.broker.VerifyCode(ctx, id.Value, code); err != nil {
		return Login{}, err
	}
	user, err := s.identities.LookupOrCreate(ctx, id.Value)
	if err != nil {
		return Login{}, err
	}
	return s.open(ctx, user)
}

// Federated signs in with an email already verified by the external
// provider.
func (s *Service) Federated(ctx context.Context, email string) (Login, error) {
	user, err := s.identities.LoginAlternate(ctx, email)
	if err != nil {
		return Login{}, err
	}
	return s.open(ctx, user)
}

// Current returns the session for token.
func (s *Service) Current(ctx context.Context, token string) (session.Session, bool, error) {
	return s.sessions.For(token).Current(ctx)
}

// Refresh reloads the user behind token from the identity store and
// re-establishes the snapshot. An unknown user ends the session.
func (s *Service) Refresh(ctx context.Context, token string) (session.Session, error) {
	mgr := s.sessions.For(token)
	current, ok, err := mgr.Current(ctx)
	if err != nil {
		return session.Session{}, err
	}
	if !ok {
		return session.Session{}, identity.ErrUnknownUser
	}
	user, err := s.identities.Get(ctx, current.User.ID)
	if errors.Is(err, identity.ErrUnknownUser) {
		_ = mgr.Teardown(ctx)
		return session.Session{}, err
	}
	if err != nil {
		return session.Session{}, err
	}
	return mgr.Establish(ctx, user)
}

// Logout tears the session down.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.For(token).Teardown(ctx)
}

func (s *Service) open(ctx context.Context, user identity.User) (Login, error) {
	token, sess, err := s.sessions.Open(ctx, user)
	if err != nil {
		return Login{}, fmt.Errorf("establish session: %w", err)
	}
	return Login{Token: token, Session: sess}, nil
}
