package raftnode

import (
	"context"

	"raftchat/internal/raftrpc"
	"raftchat/internal/raftstate"
)

// HandleRequestVote implements spec §4.1's RequestVote receiver rules,
// grounded on the teacher's handleRequestVote (currently a TODO stub in
// the teacher, implemented here per spec): grant the vote only if the
// candidate's term is at least as current and its log is at least as
// up to date as ours, and only once per term.
func (n *Node) HandleRequestVote(args raftrpc.RequestVoteArgs) raftrpc.RequestVoteReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term < n.persistent.CurrentTerm {
		return raftrpc.RequestVoteReply{Term: n.persistent.CurrentTerm, VoteGranted: false}
	}
	if args.Term > n.persistent.CurrentTerm {
		n.stepDownLocked(args.Term)
	}

	alreadyVoted := n.persistent.VotedFor != raftstate.NoVote && n.persistent.VotedFor != int64(args.CandidateID)
	logOK := args.LastLogTerm > n.persistent.LastTerm() ||
		(args.LastLogTerm == n.persistent.LastTerm() && args.LastLogIndex >= n.persistent.LastIndex())

	if alreadyVoted || !logOK {
		return raftrpc.RequestVoteReply{Term: n.persistent.CurrentTerm, VoteGranted: false}
	}

	n.persistent.VotedFor = int64(args.CandidateID)
	if err := n.persistTermAndVote(); err != nil {
		n.log.WithError(err).Error("raft: persist vote failed")
		return raftrpc.RequestVoteReply{Term: n.persistent.CurrentTerm, VoteGranted: false}
	}
	n.resetElectionDeadlineLocked()
	return raftrpc.RequestVoteReply{Term: n.persistent.CurrentTerm, VoteGranted: true}
}

// stepDownLocked adopts a higher term observed from a peer and reverts
// to Follower, per spec §4.1's "any RPC or reply carrying a higher term
// causes an immediate, unconditional step-down". Called with the current
// term (a candidate hearing from its term's leader), it only changes the
// role and keeps the vote. Caller holds n.mu.
func (n *Node) stepDownLocked(term uint64) {
	if term > n.persistent.CurrentTerm {
		n.persistent.CurrentTerm = term
		n.persistent.VotedFor = raftstate.NoVote
		if err := n.persistTermAndVote(); err != nil {
			n.log.WithError(err).Error("raft: persist term failed")
		}
	}
	n.volatile.Role = raftstate.Follower
	n.volatile.Leader = raftstate.LeaderVolatile{}
	n.failWaitersLocked(&NotLeaderError{LeaderHint: n.volatile.LeaderHint})
}

// startElection is the candidate path of spec §4.1: increment term, vote
// for self, persist, and solicit votes from every peer in parallel.
// Grounded on the teacher's startElection/sendRequestVoteCommands, but
// tracking replies per RPC round instead of a shared unbuffered channel
// so a slow peer can never block the tick loop past the round's own
// RPC timeout.
func (n *Node) startElection() {
	n.mu.Lock()
	n.persistent.CurrentTerm++
	n.persistent.VotedFor = int64(n.id)
	term := n.persistent.CurrentTerm
	n.volatile.Role = raftstate.Candidate
	lastIndex := n.persistent.LastIndex()
	lastTerm := n.persistent.LastTerm()
	if err := n.persistTermAndVote(); err != nil {
		n.log.WithError(err).Error("raft: persist vote failed")
		n.mu.Unlock()
		return
	}
	n.resetElectionDeadlineLocked()
	peers := make(map[uint64]string, len(n.peers))
	for id, addr := range n.peers {
		peers[id] = addr
	}
	n.mu.Unlock()

	n.log.WithField("term", term).Info("raft: starting election")

	type result struct {
		reply raftrpc.RequestVoteReply
		err   error
	}
	results := make(chan result, len(peers))
	for _, addr := range peers {
		addr := addr
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), n.tunables.RPCTimeout)
			defer cancel()
			reply, err := n.transport.SendRequestVote(ctx, addr, raftrpc.RequestVoteArgs{
				Term:         term,
				CandidateID:  n.id,
				LastLogIndex: lastIndex,
				LastLogTerm:  lastTerm,
			})
			results <- result{reply, err}
		}()
	}

	votes := 1 // self
	quorum := len(n.cluster)/2 + 1
	for i := 0; i < len(peers); i++ {
		r := <-results
		if r.err != nil {
			continue
		}
		n.mu.Lock()
		if r.reply.Term > n.persistent.CurrentTerm {
			n.stepDownLocked(r.reply.Term)
			n.mu.Unlock()
			return
		}
		stillCandidate := n.volatile.Role == raftstate.Candidate && n.persistent.CurrentTerm == term
		n.mu.Unlock()
		if !stillCandidate {
			return
		}
		if r.reply.VoteGranted {
			votes++
		}
		if votes >= quorum {
			n.becomeLeader(term)
			return
		}
	}
}

// becomeLeader installs leader volatile state (spec §4.1/§4.3: nextIndex
// initialized to leader's last log index + 1, matchIndex to 0/-1) and
// immediately broadcasts a no-op heartbeat round to assert leadership.
func (n *Node) becomeLeader(term uint64) {
	n.mu.Lock()
	if n.volatile.Role != raftstate.Candidate || n.persistent.CurrentTerm != term {
		n.mu.Unlock()
		return
	}
	n.volatile.Role = raftstate.Leader
	n.volatile.LeaderID = n.id
	n.volatile.LeaderHint = n.cluster[n.id]
	lastIndex := n.persistent.LastIndex()
	next := make(map[uint64]int64, len(n.peers))
	match := make(map[uint64]int64, len(n.peers))
	for id := range n.peers {
		next[id] = lastIndex + 1
		match[id] = -1
	}
	n.volatile.Leader = raftstate.LeaderVolatile{NextIndex: next, MatchIndex: match}
	n.log.WithField("term", term).Info("raft: became leader")
	n.mu.Unlock()

	n.broadcastAppendEntries()
}
