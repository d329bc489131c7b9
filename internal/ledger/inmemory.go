package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/viralscript/viralscript/internal/identity"
)

type inMemoryStore struct {
	mu         sync.Mutex
	users      identity.Mutator
	entries    map[string][]Entry // user id -> entries, oldest first
	references map[string]struct{}
}

// NewInMemory creates a concurrency-safe ledger store over an in-memory
// identity repository. Useful for development and unit tests.
func NewInMemory(users identity.Mutator) Store {
	return &inMemoryStore{
		users:      users,
		entries:    make(map[string][]Entry),
		references: make(map[string]struct{}),
	}
}

func (l *inMemoryStore) Apply(ctx context.Context, userID string, reason Reason, reference string, change Change) (identity.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	refKey := string(reason) + ":" + reference
	if reference != "" {
		if _, exists := l.references[refKey]; exists {
			user, err := l.users.FindByID(ctx, userID)
			if err != nil {
				return identity.User{}, err
			}
			return user, ErrDuplicateTransaction
		}
	}

	var entry Entry
	user, err := l.users.Mutate(ctx, userID, func(u *identity.User) error {
		delta, err := change(u)
		if err != nil {
			return err
		}
		u.CreditsBalance += delta
		entry = Entry{
			ID:           uuid.NewString(),
			UserID:       u.ID,
			Delta:        delta,
			BalanceAfter: u.CreditsBalance,
			Reason:       reason,
			Reference:    reference,
			CreatedAt:    time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return user, err
	}

	l.entries[userID] = append(l.entries[userID], entry)
	if reference != "" {
		l.references[refKey] = struct{}{}
	}
	return user, nil
}

func (l *inMemoryStore) Load(ctx context.Context, userID string) (identity.User, error) {
	return l.users.FindByID(ctx, userID)
}

func (l *inMemoryStore) History(_ context.Context, userID string, limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.entries[userID]
	out := make([]Entry, len(src))
	copy(out, src)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
