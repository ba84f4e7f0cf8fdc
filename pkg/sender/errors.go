package sender

import "errors"

var (
	// ErrInvalidConfig is returned when a sender is created with missing
	// or malformed configuration.
	ErrInvalidConfig = errors.New("invalid sender configuration")

	// ErrTokenInvalid is returned when the push transport reports the
	// device token as unregistered or malformed. The token must be
	// deactivated; retrying it is pointless.
	ErrTokenInvalid = errors.New("device token is invalid or unregistered")

	// ErrDeliveryFailed is returned for transient transport failures that
	// are worth retrying.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrEmptyPhoneNumber is returned when sending SMS without a number.
	ErrEmptyPhoneNumber = errors.New("phone number cannot be empty")

	// ErrEmptyRecipient is returned when sending email without a recipient.
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
)
