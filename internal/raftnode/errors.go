package raftnode

import "fmt"

// NotLeaderError is returned by Propose when this node isn't (or stops
// being, mid-replication) the leader. LeaderHint carries the last known
// leader address, if any, so the router can redirect per spec §4.4.
type NotLeaderError struct {
	LeaderHint string
}

func (e *NotLeaderError) Error() string {
	if e.LeaderHint == "" {
		return "raftnode: not the leader"
	}
	return fmt.Sprintf("raftnode: not the leader, try %s", e.LeaderHint)
}

// ErrNotLeader is the zero-hint sentinel used when no leader is known.
var ErrNotLeader = &NotLeaderError{}

// ErrProposalTimedOut is returned when a Propose call's context expires
// before the entry is applied.
var ErrProposalTimedOut = fmt.Errorf("raftnode: proposal timed out")
