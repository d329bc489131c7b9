package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps users in process memory with secondary indexes on
// email, phone number and address. It also satisfies Mutator, which the
// in-memory credit ledger builds on.
type MemoryRepository struct {
	mu        sync.RWMutex
	users     map[string]User   // id -> user
	byEmail   map[string]string // email -> id
	byPhone   map[string]string // phone -> id
	byAddress map[string]string // ip -> id
}

// NewMemoryRepository builds an in-memory user store for development and tests.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[string]User),
		byEmail:   make(map[string]string),
		byPhone:   make(map[string]string),
		byAddress: make(map[string]string),
	}
}

// Create stores the user and binds its address. The address index is
// checked first so that a taken address wins over a taken identifier.
func (r *MemoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAddress[user.IPAddress]; exists {
		return ErrAddressTaken
	}
	if user.Email != "" {
		if _, exists := r.byEmail[user.Email]; exists {
			return ErrIdentifierTaken
		}
	}
	if user.PhoneNumber != "" {
		if _, exists := r.byPhone[user.PhoneNumber]; exists {
			return ErrIdentifierTaken
		}
	}
	if _, exists := r.users[user.ID]; exists {
		return ErrIdentifierTaken
	}

	r.users[user.ID] = user
	r.byAddress[user.IPAddress] = user.ID
	if user.Email != "" {
		r.byEmail[user.Email] = user.ID
	}
	if user.PhoneNumber != "" {
		r.byPhone[user.PhoneNumber] = user.ID
	}
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUnknownUser
	}
	return user, nil
}

func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	return r.findVia(r.byEmail, email)
}

func (r *MemoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	return r.findVia(r.byPhone, phone)
}

func (r *MemoryRepository) FindByAddress(_ context.Context, addr string) (User, error) {
	return r.findVia(r.byAddress, addr)
}

func (r *MemoryRepository) findVia(index map[string]string, key string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := index[key]
	if !ok {
		return User{}, ErrUnknownUser
	}
	return r.users[id], nil
}

// Mutate applies fn to a copy of the user under the write lock and stores
// the result when fn succeeds. The address, email and phone indexes are not
// touched; fn must not change those fields.
func (r *MemoryRepository) Mutate(_ context.Context, id string, fn func(*User) error) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUnknownUser
	}
	updated := user
	if err := fn(&updated); err != nil {
		return user, err
	}
	updated.ID, updated.Email, updated.PhoneNumber, updated.IPAddress = user.ID, user.Email, user.PhoneNumber, user.IPAddress
	updated.UpdatedAt = time.Now().UTC()
	r.users[id] = updated
	return updated, nil
}
