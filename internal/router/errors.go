// Package router is the client request router of spec §4.4: classifies
// each application RPC as mutating (goes through Raft via
// raftnode.Node.Propose) or read-only (served from the last-applied
// state after session validation), and translates raftnode/statemachine
// outcomes into the RPC error taxonomy of spec §7. Grounded on the
// teacher's node.handleClientCommand/handleWriteClientCommand/
// handleReadOnlyClientCommand split, generalized from the teacher's one
// string command to the thirteen RPCs of spec §6.
package router

import "fmt"

// Code is the closed error taxonomy of spec §7.
type Code int

const (
	Unauthenticated Code = iota
	FailedPrecondition
	Unavailable
	Internal
	DeadlineExceeded
)

func (c Code) String() string {
	switch c {
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case FailedPrecondition:
		return "FAILED_PRECONDITION"
	case Unavailable:
		return "UNAVAILABLE"
	case Internal:
		return "INTERNAL"
	case DeadlineExceeded:
		return "DEADLINE_EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

// Error is the router's error type. LeaderHint is only meaningful for
// FailedPrecondition (spec §7 category 5: "client-visible non-leader").
type Error struct {
	Code       Code
	Reason     string
	LeaderHint string
}

func (e *Error) Error() string {
	if e.LeaderHint != "" {
		return fmt.Sprintf("%s: %s (leader: %s)", e.Code, e.Reason, e.LeaderHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func unauthenticated() *Error { return &Error{Code: Unauthenticated, Reason: "invalid session"} }

func notLeader(hint string) *Error {
	return &Error{Code: FailedPrecondition, Reason: "not the leader", LeaderHint: hint}
}

func unavailable(reason string) *Error { return &Error{Code: Unavailable, Reason: reason} }

func internal(reason string) *Error { return &Error{Code: Internal, Reason: reason} }

func deadlineExceeded() *Error {
	return &Error{Code: DeadlineExceeded, Reason: "proposal did not commit in time"}
}
