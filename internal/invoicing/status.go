package invoicing

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a document.
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusIssued      Status = "ISSUED"
	StatusPaid        Status = "PAID"
	StatusPartialPaid Status = "PARTIAL_PAID"
	StatusCancelled   Status = "CANCELLED"
	StatusVoided      Status = "VOIDED"
)

var statuses = map[Status]struct{}{
	StatusDraft:       {},
	StatusIssued:      {},
	StatusPaid:        {},
	StatusPartialPaid: {},
	StatusCancelled:   {},
	StatusVoided:      {},
}

// transitions lists the targets reachable by a direct request from each state.
// Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusDraft:       {StatusIssued, StatusCancelled, StatusVoided},
	StatusIssued:      {StatusDraft, StatusCancelled, StatusVoided},
	StatusPartialPaid: {StatusCancelled, StatusVoided},
	StatusPaid:        {StatusVoided},
}

// ParseStatus converts untrusted input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := statuses[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusVoided
}

// PaymentOnly reports whether s may only be reached through settlement.
func (s Status) PaymentOnly() bool {
	return s == StatusPaid || s == StatusPartialPaid
}

// Settleable reports whether a confirmed payment may move a document out of s.
func (s Status) Settleable() bool {
	return s == StatusDraft || s == StatusIssued || s == StatusPartialPaid
}

// CheckTransition validates a direct transition request. Terminal states are
// reported before anything else about the target.
func CheckTransition(from, to Status) error {
	if from.Terminal() {
		return fmt.Errorf("%w: document is %s", ErrTerminalState, from)
	}
	if to.PaymentOnly() {
		return fmt.Errorf("%w: %s is set by payment reconciliation only", ErrIllegalTransition, to)
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, from, to)
}

// AllowedTargets returns the direct transitions available from s.
func AllowedTargets(s Status) []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}
