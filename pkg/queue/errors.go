package queue

import "errors"

var (
	// ErrStorageNil is returned when a nil storage is provided.
	ErrStorageNil = errors.New("storage cannot be nil")

	// ErrStoreNil is returned when a nil notification store is provided.
	ErrStoreNil = errors.New("notification store cannot be nil")

	// ErrNilNotification is returned when enqueueing a nil notification.
	ErrNilNotification = errors.New("notification cannot be nil")

	// ErrMissingRecipient is returned when a notification without a resolved
	// recipient reaches the queue.
	ErrMissingRecipient = errors.New("notification has no recipient")

	// ErrAlreadyTerminal is returned when enqueueing a notification that has
	// already been sent or permanently failed.
	ErrAlreadyTerminal = errors.New("notification already in terminal status")

	// ErrAlreadyQueued is returned when a job for the notification is already
	// waiting, delayed, or active in any lane.
	ErrAlreadyQueued = errors.New("notification already queued")

	// ErrNoJobToClaim signals an empty queue; workers treat it as a normal
	// idle tick, not a failure.
	ErrNoJobToClaim = errors.New("no job available to claim")

	// ErrNotRetryable is returned when requeueing a notification that is
	// not in the failed status.
	ErrNotRetryable = errors.New("notification is not retryable")

	// ErrRetryExhausted is returned when requeueing a notification that has
	// used up its retry budget.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrJobNotFound is returned when a job ID does not exist in storage.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotActive is returned when completing or failing a job that is
	// not currently claimed.
	ErrJobNotActive = errors.New("job is not active")

	// ErrDispatcherNil is returned when a worker is created without a dispatcher.
	ErrDispatcherNil = errors.New("dispatcher cannot be nil")

	// ErrWorkerAlreadyStarted is returned when Start is called twice.
	ErrWorkerAlreadyStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when Stop is called before Start.
	ErrWorkerNotStarted = errors.New("worker not started")
)
