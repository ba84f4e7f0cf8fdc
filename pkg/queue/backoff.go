package queue

import "time"

// MaxAttempts caps delivery attempts per notification. The fifth failure is
// final: no sixth attempt is ever scheduled.
const MaxAttempts int8 = 5

// baseRetryDelay is the unit of the exponential backoff curve.
const baseRetryDelay = 10 * time.Second

// RetryDelay returns how long to wait before the attempt following the given
// one. The curve doubles per attempt: 20s, 40s, 80s, 160s.
func RetryDelay(attempt int8) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt >= MaxAttempts {
		attempt = MaxAttempts - 1
	}
	return time.Duration(1<<uint(attempt)) * baseRetryDelay
}
