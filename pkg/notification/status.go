package notification

// Status is the delivery lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusClicked   Status = "clicked"
	StatusFailed    Status = "failed"
)

// transitions is the full edge set of the status state machine.
// The forward path past "sent" is optional; "failed" can be re-entered
// from the retry lane via queued/sending.
var transitions = map[Status][]Status{
	StatusPending:   {StatusQueued, StatusSending, StatusSent, StatusFailed},
	StatusQueued:    {StatusSending, StatusFailed},
	StatusSending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered},
	StatusDelivered: {StatusRead},
	StatusRead:      {StatusClicked},
	StatusClicked:   {},
	StatusFailed:    {StatusQueued, StatusSending},
}

// CanTransitionTo reports whether the state machine permits moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends queue processing for a
// notification. Failed is terminal for enqueue guards; it is only
// re-entered through the retry sweep.
func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead, StatusClicked, StatusFailed:
		return true
	}
	return false
}

// allowedPrev returns all statuses from which next is reachable. Stores use
// this to make transition validation part of the atomic update filter.
func allowedPrev(next Status) []Status {
	var prev []Status
	for from, tos := range transitions {
		for _, to := range tos {
			if to == next {
				prev = append(prev, from)
			}
		}
	}
	return prev
}
