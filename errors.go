package notifier

import "errors"

var (
	// ErrStoreNil is returned when a nil notification store is provided.
	ErrStoreNil = errors.New("notification store cannot be nil")

	// ErrQueueNil is returned when a nil delivery queue is provided.
	ErrQueueNil = errors.New("delivery queue cannot be nil")

	// ErrRegistryNil is returned when a nil device registry is provided.
	ErrRegistryNil = errors.New("device registry cannot be nil")

	// ErrHubNil is returned when a nil realtime hub is provided.
	ErrHubNil = errors.New("realtime hub cannot be nil")

	// ErrDirectoryNil is returned when a nil user directory is provided.
	ErrDirectoryNil = errors.New("user directory cannot be nil")

	// ErrEmptyTitle is returned when a notification is created without a title.
	ErrEmptyTitle = errors.New("notification title is required")

	// ErrEmptyMessage is returned when a notification is created without a message.
	ErrEmptyMessage = errors.New("notification message is required")

	// ErrMissingTarget is returned when a notification names neither a
	// recipient nor any target roles.
	ErrMissingTarget = errors.New("notification requires a recipient or target roles")

	// ErrNoRecipients is returned when a bulk send names no target users.
	ErrNoRecipients = errors.New("bulk send requires at least one target user")

	// ErrChannelUnavailable is returned when no sender is configured for
	// the channel a job was routed to.
	ErrChannelUnavailable = errors.New("no sender configured for channel")

	// ErrAllTokensFailed is returned when a push delivery exhausts every
	// active device token and every fallback transport.
	ErrAllTokensFailed = errors.New("all device tokens failed")
)
