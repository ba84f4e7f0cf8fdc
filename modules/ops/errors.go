package ops

import "errors"

var (
	errInvalidLimit = errors.New("limit must be a positive integer")
	errInvalidJobID = errors.New("invalid job ID")
	errJobNotFound  = errors.New("job not found")
)
