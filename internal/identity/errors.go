package identity

import "errors"

var (
	// ErrUnknownUser is returned when an id (or email/phone) matches no user.
	// Callers surface it as an expired session.
	ErrUnknownUser = errors.New("unknown user")

	// ErrDuplicateDevice means the caller's address already owns an identity,
	// so a new one is not created. Terminal for that signup attempt.
	ErrDuplicateDevice = errors.New("multiple accounts detected from this device")

	// ErrInvalidIdentifier rejects empty or malformed email/phone values.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrAddressTaken is reported by repositories when the address index
	// already has an owner.
	ErrAddressTaken = errors.New("address already bound")

	// ErrIdentifierTaken is reported by repositories when email or phone is
	// already registered.
	ErrIdentifierTaken = errors.New("identifier already registered")
)
