package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/viralscript/viralscript/internal/identity"
)

var (
	// ErrDuplicateTransaction indicates the (reason, reference) pair was
	// already posted, so the operation is treated as idempotent. The current
	// user is returned alongside it.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInvalidTier rejects tiers outside Free, Basic and Pro.
	ErrInvalidTier = errors.New("invalid tier")
)

// Reason classifies a balance mutation in the journal.
type Reason string

const (
	ReasonAdjustment Reason = "adjustment"
	ReasonGeneration Reason = "generation"
	ReasonAdReward   Reason = "ad_reward"
	ReasonRefill     Reason = "refill"
	ReasonTierBonus  Reason = "tier_bonus"
)

// Entry is one journal row: the delta applied and the balance it produced.
type Entry struct {
	ID           string
	UserID       string
	Delta        int64
	BalanceAfter int64
	Reason       Reason
	Reference    string
	CreatedAt    time.Time
}

// Change is computed inside the per-user transaction from the locked user.
// It returns the credit delta to apply and may modify the user's tier.
type Change func(user *identity.User) (int64, error)

// Store applies changes to a single user as an atomic read-modify-write and
// records the resulting journal entry.
type Store interface {
	// Apply locks the user, rejects a reused non-empty reference with
	// ErrDuplicateTransaction, runs change, adds the returned delta to the
	// balance, then persists the user and the entry together. When change
	// fails nothing is written and the unchanged user is returned with the
	// error. Unknown ids yield identity.ErrUnknownUser.
	Apply(ctx context.Context, userID string, reason Reason, reference string, change Change) (identity.User, error)
	Load(ctx context.Context, userID string) (identity.User, error)
	History(ctx context.Context, userID string, limit int) ([]Entry, error)
}
