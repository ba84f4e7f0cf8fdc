package realtime

import "errors"

var (
	// ErrHubClosed is returned when operating on a closed hub.
	ErrHubClosed = errors.New("realtime hub is closed")

	// ErrNotConnected is returned by Publish when the user has no live
	// subscriptions; callers use it to fall back to another channel.
	ErrNotConnected = errors.New("user has no active realtime connection")

	// ErrShutdownTimeout is returned when Close gives up waiting for
	// background goroutines.
	ErrShutdownTimeout = errors.New("realtime hub shutdown timed out")

	// ErrEmptyUserID is returned when subscribing without a user ID.
	ErrEmptyUserID = errors.New("user id cannot be empty")
)
