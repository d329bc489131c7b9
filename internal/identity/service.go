package identity

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/viralscript/viralscript/internal/netaddr"
)

// Service manages identity lookup and creation.
type Service struct {
	repo     Repository
	resolver netaddr.Resolver
	newID    func() string
	now      func() time.Time
}

// NewService creates a new identity service. The resolver should already be
// bounded (see netaddr.Bounded); resolution errors are still absorbed here.
func NewService(repo Repository, resolver netaddr.Resolver) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		newID:    func() string { return ksuid.New().String() },
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// LookupOrCreate returns the user registered under identifier, creating one
// bound to the caller's address when none exists.
func (s *Service) LookupOrCreate(ctx context.Context, identifier string) (User, error) {
	id, err := ParseIdentifier(identifier)
	if err != nil {
		return User{}, err
	}
	return s.lookupOrCreate(ctx, id)
}

// LoginAlternate is the federated login path: keyed purely on email, no code
// exchange, same address check on creation.
func (s *Service) LoginAlternate(ctx context.Context, email string) (User, error) {
	id, err := ParseIdentifier(email)
	if err != nil {
		return User{}, err
	}
	if !id.IsEmail() {
		return User{}, ErrInvalidIdentifier
	}
	return s.lookupOrCreate(ctx, id)
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	return s.repo.FindByID(ctx, userID)
}

func (s *Service) lookupOrCreate(ctx context.Context, id Identifier) (User, error) {
	user, err := s.find(ctx, id)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUnknownUser) {
		return User{}, err
	}

	addr, err := s.admit(ctx)
	if errors.Is(err, ErrDuplicateDevice) {
		return s.settle(ctx, id)
	}
	if err != nil {
		return User{}, err
	}

	now := s.now()
	user = User{
		ID:             s.newID(),
		IPAddress:      addr,
		CreditsBalance: InitialCredits,
		UserType:       TierFree,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if id.IsEmail() {
		user.Email = id.Value
	} else {
		user.PhoneNumber = id.Value
	}

	switch err := s.repo.Create(ctx, user); {
	case err == nil:
		return user, nil
	case errors.Is(err, ErrAddressTaken):
		return s.settle(ctx, id)
	case errors.Is(err, ErrIdentifierTaken):
		// Lost a creation race for the same identifier; the winner is the user.
		return s.find(ctx, id)
	default:
		return User{}, err
	}
}

// settle resolves a lost address race: if a concurrent request created this
// very identifier, that user is returned; otherwise the address belongs to
// someone else.
func (s *Service) settle(ctx context.Context, id Identifier) (User, error) {
	user, err := s.find(ctx, id)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, ErrUnknownUser):
		return User{}, ErrDuplicateDevice
	default:
		return User{}, err
	}
}

func (s *Service) find(ctx context.Context, id Identifier) (User, error) {
	if id.IsEmail() {
		return s.repo.FindByEmail(ctx, id.Value)
	}
	return s.repo.FindByPhone(ctx, id.Value)
}
