package identity

import (
	"context"
	"errors"

	"github.com/viralscript/viralscript/internal/netaddr"
)

// admit resolves the caller's address and refuses it when the address index
// already names an owner. Only creation consults the guard: returning users
// on a shared address keep logging in.
//
// The check here is advisory; Repository.Create enforces the same rule
// atomically for concurrent signups.
func (s *Service) admit(ctx context.Context) (string, error) {
	addr := netaddr.Loopback
	if s.resolver != nil {
		if resolved, err := s.resolver.Resolve(ctx); err == nil && resolved != "" {
			addr = resolved
		}
	}

	_, err := s.repo.FindByAddress(ctx, addr)
	switch {
	case err == nil:
		return "", ErrDuplicateDevice
	case errors.Is(err, ErrUnknownUser):
		return addr, nil
	default:
		return "", err
	}
}
