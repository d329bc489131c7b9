package metering

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/ledger"
)

var (
	// ErrInsufficientCredits means the balance does not cover the feature cost.
	// Callers typically offer a refill.
	ErrInsufficientCredits = errors.New("insufficient credits")

	ErrTopicRequired     = errors.New("topic is required")
	ErrReferenceRequired = errors.New("reference is required")
)

// Config holds the business constants for metered features.
type Config struct {
	GenerationCost int64
	AdReward       int64
	RefillCredits  int64
}

// Service charges for metered features and grants promotional credits. It
// owns the affordability policy the ledger leaves to its callers.
type Service struct {
	ledger    *ledger.Service
	generator Generator
	cfg       Config
}

// NewService builds a metering service. A nil generator falls back to
// StaticGenerator.
func NewService(ledgerSvc *ledger.Service, generator Generator, cfg Config) (*Service, error) {
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	if generator == nil {
		generator = StaticGenerator{}
	}
	return &Service{ledger: ledgerSvc, generator: generator, cfg: cfg}, nil
}

// Result pairs generated content with the user after the charge.
type Result struct {
	Script Script
	User   identity.User
}

// Generate checks the user can afford one generation, calls the generator
// and debits the cost. Nothing is charged when generation fails.
//
// The affordability check and the debit are separate steps, so two
// concurrent generations may both pass the check and leave a small negative
// balance.
func (s *Service) Generate(ctx context.Context, userID string, req Request) (Result, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return Result{}, ErrTopicRequired
	}

	ok, err := s.ledger.CanAfford(ctx, userID, s.cfg.GenerationCost)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, ErrInsufficientCredits
	}

	script, err := s.generator.Generate(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("generate script: %w", err)
	}

	user, err := s.ledger.Post(ctx, ledger.Posting{
		UserID:    userID,
		Delta:     -s.cfg.GenerationCost,
		Reason:    ledger.ReasonGeneration,
		Reference: script.ID,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Script: script, User: user}, nil
}

// RewardAd grants the engagement reward once per ad reference.
func (s *Service) RewardAd(ctx context.Context, userID, adRef string) (identity.User, error) {
	return s.grant(ctx, userID, adRef, s.cfg.AdReward, ledger.ReasonAdReward)
}

// Refill grants the ad-funded refill once per reference.
func (s *Service) Refill(ctx context.Context, userID, ref string) (identity.User, error) {
	return s.grant(ctx, userID, ref, s.cfg.RefillCredits, ledger.ReasonRefill)
}

func (s *Service) grant(ctx context.Context, userID, ref string, amount int64, reason ledger.Reason) (identity.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return identity.User{}, ErrReferenceRequired
	}
	return s.ledger.Post(ctx, ledger.Posting{UserID: userID, Delta: amount, Reason: reason, Reference: ref})
}
