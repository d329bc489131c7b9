package metering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/ledger"
)

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, Request) (Script, error) {
	return Script{}, errors.New("model unavailable")
}

func setup(t *testing.T, balance int64, gen Generator) (*Service, string) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), identity.User{
		ID: "u1", Email: "a@b.com", IPAddress: "203.0.113.1",
		CreditsBalance: balance, UserType: identity.TierFree, CreatedAt: now, UpdatedAt: now,
	}))
	svc, err := NewService(ledger.NewService(ledger.NewInMemory(repo)), gen, Config{
		GenerationCost: 10, AdReward: 10, RefillCredits: 20,
	})
	require.NoError(t, err)
	return svc, "u1"
}

func TestGenerateDebitsCost(t *testing.T) {
	svc, id := setup(t, 100, nil)

	res, err := svc.Generate(context.Background(), id, Request{Topic: "Morning routines", Platform: "TikTok"})
	require.NoError(t, err)
	require.Equal(t, int64(90), res.User.CreditsBalance)
	require.Equal(t, "Morning routines", res.Script.Topic)
	require.NotEmpty(t, res.Script.ID)
}

func TestGenerateRequiresCredits(t *testing.T) {
	svc, id := setup(t, 9, nil)

	_, err := svc.Generate(context.Background(), id, Request{Topic: "Budget travel"})
	require.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestGenerateFailureChargesNothing(t *testing.T) {
	svc, id := setup(t, 100, failingGenerator{})

	_, err := svc.Generate(context.Background(), id, Request{Topic: "Budget travel"})
	require.Error(t, err)

	user, err := svc.ledger.Balance(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, int64(100), user.CreditsBalance)
}

func TestGenerateUnknownUser(t *testing.T) {
	svc, _ := setup(t, 100, nil)
	_, err := svc.Generate(context.Background(), "ghost", Request{Topic: "x"})
	require.ErrorIs(t, err, identity.ErrUnknownUser)
}

func TestRewardAdOncePerReference(t *testing.T) {
	svc, id := setup(t, 0, nil)
	ctx := context.Background()

	user, err := svc.RewardAd(ctx, id, "ad-42")
	require.NoError(t, err)
	require.Equal(t, int64(10), user.CreditsBalance)

	user, err = svc.RewardAd(ctx, id, "ad-42")
	require.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
	require.Equal(t, int64(10), user.CreditsBalance)

	user, err = svc.Refill(ctx, id, "refill-1")
	require.NoError(t, err)
	require.Equal(t, int64(30), user.CreditsBalance)

	_, err = svc.Refill(ctx, id, " ")
	require.Error(t, err)
}
