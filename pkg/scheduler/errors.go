package scheduler

import "errors"

var (
	// ErrInvalidJob is returned when registering a job without a name,
	// schedule, or function.
	ErrInvalidJob = errors.New("invalid job registration")

	// ErrJobAlreadyRegistered is returned on duplicate job names.
	ErrJobAlreadyRegistered = errors.New("job already registered")

	// ErrNoJobs is returned when starting a scheduler with no jobs.
	ErrNoJobs = errors.New("no jobs registered")

	// ErrAlreadyStarted is returned when mutating or starting a running
	// scheduler.
	ErrAlreadyStarted = errors.New("scheduler already started")
)
