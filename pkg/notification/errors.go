package notification

import "errors"

var (
	// ErrNotFound is returned when a notification does not exist.
	ErrNotFound = errors.New("notification not found")

	// ErrInvalidTransition is returned when a status update would violate
	// the state machine edge set.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNilNotification is returned when a nil notification is stored.
	ErrNilNotification = errors.New("notification cannot be nil")

	// ErrMissingID is returned when a notification has no identity.
	ErrMissingID = errors.New("notification ID is required")

	// ErrInvalidPriority is returned when priority is outside the 1-4 range.
	ErrInvalidPriority = errors.New("priority must be between urgent (1) and low (4)")
)
