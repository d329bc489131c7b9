package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/viralscript/viralscript/internal/netaddr"
)

func TestLookupOrCreateNewUser(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, netaddr.Static("203.0.113.10"))

	ctx := context.Background()
	user, err := svc.LookupOrCreate(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("lookup or create: %v", err)
	}

	if user.Email != "a@b.com" || user.PhoneNumber != "" {
		t.Fatalf("unexpected identifiers: email=%q phone=%q", user.Email, user.PhoneNumber)
	}
	if user.CreditsBalance != 100 {
		t.Fatalf("expected 100 credits, got %d", user.CreditsBalance)
	}
	if user.UserType != TierFree {
		t.Fatalf("expected Free tier, got %s", user.UserType)
	}
	if user.IPAddress != "203.0.113.10" {
		t.Fatalf("expected bound address, got %s", user.IPAddress)
	}
	if user.ID == "" {
		t.Fatalf("expected generated id")
	}

	owner, err := repo.FindByAddress(ctx, "203.0.113.10")
	if err != nil || owner.ID != user.ID {
		t.Fatalf("address index not bound: %v", err)
	}
}

func TestLookupOrCreateReturnsExistingUnchanged(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, netaddr.Static("203.0.113.10"))
	ctx := context.Background()

	first, err := svc.LookupOrCreate(ctx, "+15550100")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Mutate(ctx, first.ID, func(u *User) error {
		u.CreditsBalance = 42
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	// Same address, but an existing identity is never blocked.
	again, err := svc.LookupOrCreate(ctx, " +15550100 ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if again.ID != first.ID || again.CreditsBalance != 42 {
		t.Fatalf("expected existing user with 42 credits, got %+v", again)
	}
}

func TestLookupOrCreateDuplicateDevice(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, netaddr.Static("203.0.113.10"))
	ctx := context.Background()

	first, err := svc.LookupOrCreate(ctx, "first@example.com")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}

	_, err = svc.LookupOrCreate(ctx, "second@example.com")
	if !errors.Is(err, ErrDuplicateDevice) {
		t.Fatalf("expected duplicate device error, got %v", err)
	}

	if _, err := repo.FindByEmail(ctx, "second@example.com"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("second identity must not be persisted, got %v", err)
	}
	still, err := repo.FindByID(ctx, first.ID)
	if err != nil || still != first {
		t.Fatalf("existing user changed: %+v (%v)", still, err)
	}
}

func TestLookupOrCreateFallsBackToLoopback(t *testing.T) {
	failing := netaddr.ResolverFunc(func(context.Context) (string, error) {
		return "", errors.New("geolocation offline")
	})
	svc := NewService(NewMemoryRepository(), failing)

	user, err := svc.LookupOrCreate(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("resolution failure must not surface: %v", err)
	}
	if user.IPAddress != netaddr.Loopback {
		t.Fatalf("expected loopback sentinel, got %s", user.IPAddress)
	}
}

func TestLoginAlternate(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, netaddr.Static("198.51.100.2"))
	ctx := context.Background()

	user, err := svc.LoginAlternate(ctx, "Creator@Example.com")
	if err != nil {
		t.Fatalf("federated login: %v", err)
	}
	if user.Email != "creator@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}

	if _, err := svc.LoginAlternate(ctx, "+15550100"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected invalid identifier for phone, got %v", err)
	}
	if _, err := svc.LoginAlternate(ctx, "other@example.com"); !errors.Is(err, ErrDuplicateDevice) {
		t.Fatalf("expected duplicate device on federated signup, got %v", err)
	}
}

func TestLookupOrCreateRejectsEmptyIdentifier(t *testing.T) {
	svc := NewService(NewMemoryRepository(), netaddr.Static("198.51.100.2"))
	if _, err := svc.LookupOrCreate(context.Background(), "   "); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected invalid identifier, got %v", err)
	}
}

func TestConcurrentSignupsFromOneAddress(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, netaddr.Static("203.0.113.50"))
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.LookupOrCreate(ctx, fmt.Sprintf("user%d@example.com", i))
			switch {
			case err == nil:
				mu.Lock()
				created++
				mu.Unlock()
			case errors.Is(err, ErrDuplicateDevice):
			default:
				t.Errorf("signup %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one identity per address, got %d", created)
	}
}

func TestGetUnknownUser(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected unknown user, got %v", err)
	}
}

func TestLookupOrCreateReturnsIdentityCreatedConcurrently(t *testing.T) {
	repo := NewMemoryRepository()
	var winner User
	// Another request creates the same identity while this one resolves the address.
	racing := netaddr.ResolverFunc(func(ctx context.Context) (string, error) {
		winner = User{ID: "winner", Email: "a@b.com", IPAddress: "203.0.113.7", CreditsBalance: InitialCredits, UserType: TierFree}
		if err := repo.Create(ctx, winner); err != nil {
			t.Errorf("create winner: %v", err)
		}
		return "203.0.113.7", nil
	})
	svc := NewService(repo, racing)

	user, err := svc.LookupOrCreate(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("expected the concurrently created user, got %v", err)
	}
	if user.ID != winner.ID {
		t.Fatalf("expected user %q, got %q", winner.ID, user.ID)
	}
}

func TestLookupOrCreateRaceOnOtherIdentityStillDuplicate(t *testing.T) {
	repo := NewMemoryRepository()
	racing := netaddr.ResolverFunc(func(ctx context.Context) (string, error) {
		if err := repo.Create(ctx, User{ID: "other", Email: "other@b.com", IPAddress: "203.0.113.7"}); err != nil {
			t.Errorf("create other: %v", err)
		}
		return "203.0.113.7", nil
	})
	svc := NewService(repo, racing)

	if _, err := svc.LookupOrCreate(context.Background(), "a@b.com"); !errors.Is(err, ErrDuplicateDevice) {
		t.Fatalf("expected duplicate device, got %v", err)
	}
}
