package router

import "errors"

var (
	// ErrPolicyNil is returned when a nil policy is provided.
	ErrPolicyNil = errors.New("policy cannot be nil")

	// ErrPresenceNil is returned when a nil presence checker is provided.
	ErrPresenceNil = errors.New("presence checker cannot be nil")
)
