package billing

import (
	"context"

	"github.com/viralscript/viralscript/internal/identity"
)

// Confirmation is what the checkout flow reports back for a payment.
type Confirmation struct {
	PaymentRef string
	UserID     string
	Tier       identity.Tier
	Amount     int64
}

// Decision captures the gateway's verdict on a payment.
type Decision struct {
	Reference string
	Status    string
}

const (
	StatusCaptured = "captured"
	StatusDeclined = "declined"
)

// Gateway represents the payment processor's verification endpoint.
type Gateway interface {
	Confirm(ctx context.Context, c Confirmation) (Decision, error)
}

// StaticGateway approves every payment. It stands in for the real processor.
type StaticGateway struct{}

// Confirm captures the payment.
func (StaticGateway) Confirm(_ context.Context, c Confirmation) (Decision, error) {
	return Decision{Reference: c.PaymentRef, Status: StatusCaptured}, nil
}
