package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/ledger"
)

type decliningGateway struct{}

func (decliningGateway) Confirm(_ context.Context, c Confirmation) (Decision, error) {
	return Decision{Reference: c.PaymentRef, Status: StatusDeclined}, nil
}

func newLedger(t *testing.T) *ledger.Service {
	t.Helper()
	repo := identity.NewMemoryRepository()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), identity.User{
		ID: "u1", Email: "a@b.com", IPAddress: "203.0.113.1",
		CreditsBalance: identity.InitialCredits, UserType: identity.TierFree, CreatedAt: now, UpdatedAt: now,
	}))
	return ledger.NewService(ledger.NewInMemory(repo))
}

func TestConfirmUpgradeGrantsBonusOnce(t *testing.T) {
	svc := NewService(nil, newLedger(t))
	ctx := context.Background()

	user, err := svc.ConfirmUpgrade(ctx, UpgradeInput{UserID: "u1", Tier: identity.TierPro, PaymentRef: "pay_123"})
	require.NoError(t, err)
	require.Equal(t, identity.TierPro, user.UserType)
	require.Equal(t, int64(2100), user.CreditsBalance)

	user, err = svc.ConfirmUpgrade(ctx, UpgradeInput{UserID: "u1", Tier: identity.TierPro, PaymentRef: "pay_123"})
	require.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
	require.Equal(t, int64(2100), user.CreditsBalance)
}

func TestConfirmUpgradeDeclined(t *testing.T) {
	svc := NewService(decliningGateway{}, newLedger(t))

	_, err := svc.ConfirmUpgrade(context.Background(), UpgradeInput{UserID: "u1", Tier: identity.TierBasic, PaymentRef: "pay_1"})
	require.ErrorIs(t, err, ErrPaymentDeclined)
}

func TestConfirmUpgradeValidation(t *testing.T) {
	svc := NewService(nil, newLedger(t))
	ctx := context.Background()

	_, err := svc.ConfirmUpgrade(ctx, UpgradeInput{UserID: "u1", Tier: identity.TierFree, PaymentRef: "pay_1"})
	require.ErrorIs(t, err, ErrNotUpgradable)

	_, err = svc.ConfirmUpgrade(ctx, UpgradeInput{UserID: "u1", Tier: identity.TierBasic})
	require.Error(t, err)

	_, err = svc.ConfirmUpgrade(ctx, UpgradeInput{UserID: "ghost", Tier: identity.TierBasic, PaymentRef: "pay_2"})
	require.ErrorIs(t, err, identity.ErrUnknownUser)
}

func TestPlansMatchTierBonuses(t *testing.T) {
	plans := Plans()
	require.Len(t, plans, 2)
	require.Equal(t, int64(500), plans[0].Bonus)
	require.Equal(t, int64(2000), plans[1].Bonus)
}
