// Package otp issues and verifies short-lived numeric codes per identifier.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/notification"
)

var (
	// ErrInvalidOrExpired covers a wrong code, an expired code and a missing
	// pending code alike. The caller recovers by requesting a new code.
	ErrInvalidOrExpired = errors.New("invalid or expired code")

	// ErrInvalidIdentifier rejects blank or malformed identifiers.
	ErrInvalidIdentifier = errors.New("identifier is required")
)

const (
	DefaultTTL    = 5 * time.Minute
	DefaultDigits = 6
)

// PendingCode is the single live code for an identifier. Only the bcrypt
// hash of the code is kept.
type PendingCode struct {
	Identifier string    `json:"identifier"`
	CodeHash   []byte    `json:"code_hash"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store persists pending codes, at most one per identifier.
type Store interface {
	// Put stores code, replacing any pending code for the same identifier.
	Put(ctx context.Context, code PendingCode) error
	// Consume deletes the pending code for identifier if accept approves it,
	// atomically with respect to Put. It reports whether a code was consumed;
	// a rejected or missing code is left as it was.
	Consume(ctx context.Context, identifier string, accept func(PendingCode) bool) (bool, error)
}

// Config tunes code generation.
type Config struct {
	TTL      time.Duration
	Digits   int
	HashCost int
}

// Broker issues codes, hands them to the delivery channel and verifies them.
type Broker struct {
	store    Store
	notifier notification.Notifier
	cfg      Config
	now      func() time.Time
}

// NewBroker builds a broker. Zero config values fall back to a five minute,
// six digit code hashed at bcrypt.DefaultCost.
func NewBroker(store Store, notifier notification.Notifier, cfg Config) *Broker {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Digits <= 0 {
		cfg.Digits = DefaultDigits
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	return &Broker{store: store, notifier: notifier, cfg: cfg, now: time.Now}
}

// RequestCode issues a new code for identifier, superseding any pending
// one, and returns it. Delivery goes through the notifier; its failures do
// not fail the request.
func (b *Broker) RequestCode(ctx context.Context, identifier string) (string, error) {
	identifier, err := normalize(identifier)
	if err != nil {
		return "", err
	}

	code, err := randomDigits(b.cfg.Digits)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), b.cfg.HashCost)
	if err != nil {
		return "", fmt.Errorf("hash code: %w", err)
	}

	now := b.now().UTC()
	pending := PendingCode{
		Identifier: identifier,
		CodeHash:   hash,
		IssuedAt:   now,
		ExpiresAt:  now.Add(b.cfg.TTL),
	}
	if err := b.store.Put(ctx, pending); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}

	if b.notifier != nil {
		kind := notification.KindSMSCode
		if strings.Contains(identifier, "@") {
			kind = notification.KindEmailCode
		}
		_ = b.notifier.Send(ctx, notification.Message{
			Kind:        kind,
			Destination: identifier,
			Body:        fmt.Sprintf("Your verification code is %s. It expires in %s.", code, b.cfg.TTL),
			Secret:      code,
		})
	}

	return code, nil
}

// VerifyCode consumes the pending code for identifier when code matches and
// has not expired. Otherwise it returns ErrInvalidOrExpired and leaves the
// pending code in place so the caller may retry.
func (b *Broker) VerifyCode(ctx context.Context, identifier, code string) error {
	identifier, err := normalize(identifier)
	if err != nil || code == "" {
		return ErrInvalidOrExpired
	}

	now := b.now().UTC()
	consumed, err := b.store.Consume(ctx, identifier, func(p PendingCode) bool {
		if now.After(p.ExpiresAt) {
			return false
		}
		return bcrypt.CompareHashAndPassword(p.CodeHash, []byte(code)) == nil
	})
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	if !consumed {
		return ErrInvalidOrExpired
	}
	return nil
}

// normalize applies the identity rules so that "A@B.com" and "a@b.com"
// share one pending code.
func normalize(raw string) (string, error) {
	id, err := identity.ParseIdentifier(raw)
	if err != nil {
		return "", ErrInvalidIdentifier
	}
	return id.Value, nil
}

// randomDigits returns a zero-padded code of n digits drawn uniformly.
func randomDigits(n int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}
