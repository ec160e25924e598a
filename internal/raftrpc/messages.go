// Package raftrpc defines the wire-level request/reply shapes for the two
// Raft peer RPCs (spec §6), shared between the inbound handlers in
// raftnode and the outbound stubs in rafttransport. Field names mirror
// spec §6; node ids (CandidateID, LeaderID) are uint64 rather than
// strings (see DESIGN.md, open question 3). The RPC framing that carries them (here,
// net/rpc over TCP — see SPEC_FULL.md §6) is the one external collaborator
// the core doesn't own.
package raftrpc

// RequestVoteArgs is spec §6's RequestVote input.
type RequestVoteArgs struct {
	Term         uint64
	CandidateID  uint64
	LastLogIndex int64
	LastLogTerm  uint64
}

// RequestVoteReply is spec §6's RequestVote output.
type RequestVoteReply struct {
	Term        uint64
	VoteGranted bool
}

// Entry is one log entry as carried over the wire inside AppendEntries.
type Entry struct {
	Term    uint64
	Command []byte
}

// AppendEntriesArgs is spec §6's AppendEntries input.
type AppendEntriesArgs struct {
	Term         uint64
	LeaderID     uint64
	PrevLogIndex int64
	PrevLogTerm  uint64
	Entries      []Entry
	LeaderCommit int64
}

// AppendEntriesReply is spec §6's AppendEntries output.
type AppendEntriesReply struct {
	Term    uint64
	Success bool
}
