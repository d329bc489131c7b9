package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/viralscript/viralscript/internal/identity"
)

// tierBonus is granted when a user moves onto the tier.
var tierBonus = map[identity.Tier]int64{
	identity.TierFree:  0,
	identity.TierBasic: 500,
	identity.TierPro:   2000,
}

// TierBonus returns the credits granted on moving to tier.
func TierBonus(tier identity.Tier) int64 { return tierBonus[tier] }

var errTierUnchanged = errors.New("tier unchanged")

// Service mutates credit balances and tiers. It is arithmetic and
// persistence only: callers decide whether a debit is affordable (see
// CanAfford) and must re-establish any session with the returned user.
type Service struct {
	store Store
}

// NewService builds a ledger service over store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Posting is a single balance mutation.
type Posting struct {
	UserID string
	Delta  int64
	Reason Reason
	// Reference makes the posting idempotent per Reason when set.
	Reference string
}

// AdjustBalance adds delta to the user's balance and returns the updated
// user; its CreditsBalance is the new balance. No floor is enforced, the
// balance may go negative.
func (s *Service) AdjustBalance(ctx context.Context, userID string, delta int64) (identity.User, error) {
	return s.Post(ctx, Posting{UserID: userID, Delta: delta, Reason: ReasonAdjustment})
}

// Post applies a posting.
func (s *Service) Post(ctx context.Context, p Posting) (identity.User, error) {
	if p.Reason == "" {
		p.Reason = ReasonAdjustment
	}
	return s.store.Apply(ctx, p.UserID, p.Reason, p.Reference, func(*identity.User) (int64, error) {
		return p.Delta, nil
	})
}

// SetTier moves the user to tier and grants that tier's bonus. Re-applying
// the user's current tier changes nothing and grants nothing.
func (s *Service) SetTier(ctx context.Context, userID string, tier identity.Tier) (identity.User, error) {
	return s.UpgradeTier(ctx, userID, tier, "")
}

// UpgradeTier is SetTier keyed by an external reference, typically the
// payment id, so that a replayed confirmation returns ErrDuplicateTransaction.
func (s *Service) UpgradeTier(ctx context.Context, userID string, tier identity.Tier, reference string) (identity.User, error) {
	bonus, ok := tierBonus[tier]
	if !ok {
		return identity.User{}, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}
	user, err := s.store.Apply(ctx, userID, ReasonTierBonus, reference, func(u *identity.User) (int64, error) {
		if u.UserType == tier {
			return 0, errTierUnchanged
		}
		u.UserType = tier
		return bonus, nil
	})
	if errors.Is(err, errTierUnchanged) {
		return user, nil
	}
	return user, err
}

// CanAfford reports whether the user's balance covers cost.
func (s *Service) CanAfford(ctx context.Context, userID string, cost int64) (bool, error) {
	user, err := s.store.Load(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.CreditsBalance >= cost, nil
}

// Balance returns the user as currently stored.
func (s *Service) Balance(ctx context.Context, userID string) (identity.User, error) {
	return s.store.Load(ctx, userID)
}

// History returns the most recent journal entries for the user, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if _, err := s.store.Load(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, userID, limit)
}
