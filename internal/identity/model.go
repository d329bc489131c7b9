package identity

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a user's subscription classification.
type Tier string

const (
	TierFree  Tier = "Free"
	TierBasic Tier = "Basic"
	TierPro   Tier = "Pro"
)

// InitialCredits is granted to every newly created identity.
const InitialCredits int64 = 100

// ParseTier validates a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return TierFree, nil
	case "basic":
		return TierBasic, nil
	case "pro":
		return TierPro, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// User is a registered identity and its credit state. Email and PhoneNumber
// are empty when absent.
type User struct {
	ID             string
	Email          string
	PhoneNumber    string
	IPAddress      string
	CreditsBalance int64
	UserType       Tier
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IdentifierKind tells email and phone identifiers apart.
type IdentifierKind int

const (
	KindEmail IdentifierKind = iota + 1
	KindPhone
)

// Identifier is a normalized email address or phone number.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// ParseIdentifier trims the raw value and classifies it; anything with an
// '@' is an email and is lower-cased.
func ParseIdentifier(raw string) (Identifier, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Identifier{}, ErrInvalidIdentifier
	}
	if strings.Contains(v, "@") {
		if strings.HasPrefix(v, "@") || strings.HasSuffix(v, "@") {
			return Identifier{}, ErrInvalidIdentifier
		}
		return Identifier{Kind: KindEmail, Value: strings.ToLower(v)}, nil
	}
	return Identifier{Kind: KindPhone, Value: v}, nil
}

// String returns the normalized value.
func (i Identifier) String() string { return i.Value }

// IsEmail reports whether the identifier is an email address.
func (i Identifier) IsEmail() bool { return i.Kind == KindEmail }

// Profile is the public view of a User.
type Profile struct {
	ID             string    `json:"id"`
	Email          string    `json:"email,omitempty"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	CreditsBalance int64     `json:"credits_balance"`
	UserType       Tier      `json:"user_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// Profile renders u for API responses. The bound address stays private.
func (u User) Profile() Profile {
	return Profile{
		ID:             u.ID,
		Email:          u.Email,
		PhoneNumber:    u.PhoneNumber,
		CreditsBalance: u.CreditsBalance,
		UserType:       u.UserType,
		CreatedAt:      u.CreatedAt,
	}
}
