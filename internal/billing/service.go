package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/ledger"
)

var (
	// ErrPaymentDeclined means the gateway did not capture the payment.
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrNotUpgradable rejects plans that cannot be bought.
	ErrNotUpgradable = errors.New("tier cannot be purchased")

	ErrPaymentRefRequired = errors.New("payment reference is required")
)

// Plan is a purchasable tier. Prices are in paise (INR / 100).
type Plan struct {
	Tier     identity.Tier
	Price    int64
	Currency string
	Bonus    int64
}

// Plans lists the monthly catalog.
func Plans() []Plan {
	return []Plan{
		{Tier: identity.TierBasic, Price: 499_00, Currency: "INR", Bonus: ledger.TierBonus(identity.TierBasic)},
		{Tier: identity.TierPro, Price: 999_00, Currency: "INR", Bonus: ledger.TierBonus(identity.TierPro)},
	}
}

func planFor(tier identity.Tier) (Plan, bool) {
	for _, p := range Plans() {
		if p.Tier == tier {
			return p, true
		}
	}
	return Plan{}, false
}

// Service turns confirmed payments into tier upgrades.
type Service struct {
	gateway Gateway
	ledger  *ledger.Service
}

// NewService constructs a billing service.
func NewService(gateway Gateway, ledgerSvc *ledger.Service) *Service {
	if gateway == nil {
		gateway = StaticGateway{}
	}
	return &Service{gateway: gateway, ledger: ledgerSvc}
}

// UpgradeInput identifies a completed checkout.
type UpgradeInput struct {
	UserID     string
	Tier       identity.Tier
	PaymentRef string
}

// ConfirmUpgrade verifies the payment and moves the user onto the tier,
// granting the bonus. The payment reference is the idempotency key: a
// replayed confirmation returns ledger.ErrDuplicateTransaction with the
// current user.
func (s *Service) ConfirmUpgrade(ctx context.Context, in UpgradeInput) (identity.User, error) {
	in.PaymentRef = strings.TrimSpace(in.PaymentRef)
	if in.PaymentRef == "" {
		return identity.User{}, ErrPaymentRefRequired
	}
	plan, ok := planFor(in.Tier)
	if !ok {
		return identity.User{}, fmt.Errorf("%w: %q", ErrNotUpgradable, in.Tier)
	}

	decision, err := s.gateway.Confirm(ctx, Confirmation{
		PaymentRef: in.PaymentRef,
		UserID:     in.UserID,
		Tier:       plan.Tier,
		Amount:     plan.Price,
	})
	if err != nil {
		return identity.User{}, fmt.Errorf("confirm payment: %w", err)
	}
	if decision.Status != StatusCaptured {
		return identity.User{}, ErrPaymentDeclined
	}

	return s.ledger.UpgradeTier(ctx, in.UserID, plan.Tier, in.PaymentRef)
}
