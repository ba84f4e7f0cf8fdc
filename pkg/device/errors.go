package device

import "errors"

var (
	// ErrStorageNil is returned when a nil storage is provided.
	ErrStorageNil = errors.New("storage cannot be nil")

	// ErrTokenNotFound is returned when a token does not exist.
	ErrTokenNotFound = errors.New("device token not found")

	// ErrEmptyToken is returned when a token string is empty.
	ErrEmptyToken = errors.New("token cannot be empty")

	// ErrEmptyUserID is returned when a user ID is empty.
	ErrEmptyUserID = errors.New("user ID cannot be empty")

	// ErrInvalidPlatform is returned for unknown platform values.
	ErrInvalidPlatform = errors.New("platform must be ios, android or web")
)
