// Package handoff implements the human-handoff confirmation flow: a pending
// request registered against a single-use token, a reply classifier and the
// escalation delivery pipeline.
package handoff

import "fmt"

// Status is the lifecycle state of a handoff record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusDisabled  Status = "disabled"
)

// transitions is the allowed edge set. Terminal states have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusExpired},
	StatusConfirmed: {StatusDelivered, StatusFailed, StatusDisabled},
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates and returns the next status.
func (s Status) Transition(next Status) (Status, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("handoff: illegal transition %s -> %s", s, next)
	}
	return next, nil
}
