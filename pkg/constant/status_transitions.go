package constant

import "fmt"

// Delivery status of a single event as it moves through the Consumer
// Runtime's idempotent-apply pipeline (spec §4.5). CREATED is the initial
// state on first delivery; PENDING marks a retry in flight after a
// transient apply failure; APPROVED is a durably committed apply; CANCELED
// is an automatic dead-letter route after the retry budget is exhausted;
// NOTED is a manual quarantine annotation left by an operator inspecting
// the dead-letter queue (see cmd/platformctl `dlq replay`).
const (
	CREATED  = "CREATED"
	PENDING  = "PENDING"
	APPROVED = "APPROVED"
	CANCELED = "CANCELED"
	NOTED    = "NOTED"
)

var validStatusCodes = map[string]bool{
	CREATED:  true,
	PENDING:  true,
	APPROVED: true,
	CANCELED: true,
	NOTED:    true,
}

// terminal states do not accept any further transition.
var terminalStatusCodes = map[string]bool{
	APPROVED: true,
	CANCELED: true,
	NOTED:    true,
}

// validTransitions maps a from-status to the set of to-statuses it may
// advance to. CREATED can move to PENDING or directly to APPROVED or
// NOTED on the very first delivery attempt; CANCELED is reachable only
// from PENDING.
var validTransitions = map[string]map[string]bool{
	CREATED: {PENDING: true, APPROVED: true, NOTED: true},
	PENDING: {APPROVED: true, CANCELED: true},
}

// AssertValidStatusCode panics if code is not one of the known delivery
// statuses. Intended for use at deserialization boundaries where a bad
// value indicates data corruption rather than a recoverable error.
func AssertValidStatusCode(code string) {
	if !validStatusCodes[code] {
		panic(fmt.Sprintf("constant: unknown transaction status code %q", code))
	}
}

// AssertValidStatusTransition panics if moving from `from` to `to` is not a
// permitted delivery-status transition.
func AssertValidStatusTransition(from, to string) {
	AssertValidStatusCode(from)
	AssertValidStatusCode(to)

	if !validTransitions[from][to] {
		panic(fmt.Sprintf("constant: invalid status transition %s -> %s", from, to))
	}
}

// IsTerminalStatus reports whether status accepts no further transitions.
func IsTerminalStatus(status string) bool {
	return terminalStatusCodes[status]
}
