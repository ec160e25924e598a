package raftnode

import (
	"context"

	"raftchat/internal/raftrpc"
	"raftchat/internal/raftstate"
)

// HandleAppendEntries implements spec §4.1/§4.2's AppendEntries receiver
// rules, grounded on the teacher's followerCommandHandler.handleAppendEntries:
// reject a stale term; reject if PrevLogIndex/PrevLogTerm don't match
// (log matching property); otherwise splice in new entries, truncating
// any conflicting suffix, and advance the commit index.
func (n *Node) HandleAppendEntries(args raftrpc.AppendEntriesArgs) raftrpc.AppendEntriesReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term < n.persistent.CurrentTerm {
		return raftrpc.AppendEntriesReply{Term: n.persistent.CurrentTerm, Success: false}
	}
	if args.Term > n.persistent.CurrentTerm || n.volatile.Role != raftstate.Follower {
		n.stepDownLocked(args.Term)
	}
	n.volatile.LeaderID = args.LeaderID
	n.volatile.LeaderHint = n.cluster[args.LeaderID]
	n.resetElectionDeadlineLocked()

	if args.PrevLogIndex >= 0 {
		prev, ok := n.persistent.EntryAt(args.PrevLogIndex)
		if !ok || prev.Term != args.PrevLogTerm {
			return raftrpc.AppendEntriesReply{Term: n.persistent.CurrentTerm, Success: false}
		}
	}

	if len(args.Entries) > 0 {
		nextIndex := args.PrevLogIndex + 1
		var newEntries []raftstate.LogEntry
		for i, wireEntry := range args.Entries {
			idx := nextIndex + int64(i)
			existing, ok := n.persistent.EntryAt(idx)
			if ok && existing.Term == wireEntry.Term {
				continue
			}
			if ok {
				n.persistent.TruncateFrom(idx)
				if err := n.store.TruncateLog(uint64(idx)); err != nil {
					n.log.WithError(err).Error("raft: truncate conflicting log tail failed")
					return raftrpc.AppendEntriesReply{Term: n.persistent.CurrentTerm, Success: false}
				}
			}
			entry := raftstate.LogEntry{Index: uint64(idx), Term: wireEntry.Term, Command: wireEntry.Command}
			n.persistent.Log = append(n.persistent.Log, entry)
			newEntries = append(newEntries, entry)
		}
		if len(newEntries) > 0 {
			if err := n.store.AppendLog(newEntries); err != nil {
				n.log.WithError(err).Error("raft: persist replicated entries failed")
				return raftrpc.AppendEntriesReply{Term: n.persistent.CurrentTerm, Success: false}
			}
		}
	}

	if args.LeaderCommit > n.volatile.CommitIndex {
		lastNew := args.PrevLogIndex + int64(len(args.Entries))
		if args.LeaderCommit < lastNew {
			n.volatile.CommitIndex = args.LeaderCommit
		} else {
			n.volatile.CommitIndex = lastNew
		}
		n.applyCommittedLocked()
	}

	return raftrpc.AppendEntriesReply{Term: n.persistent.CurrentTerm, Success: true}
}

// broadcastAppendEntries sends one AppendEntries round to every peer,
// each tailored to that peer's nextIndex, and advances matchIndex/
// nextIndex on success or backtracks by one entry on rejection (spec
// §4.3). Grounded on the teacher's replicateLogEntry/sendAppendEntriesCommand,
// generalized from the teacher's single in-flight command to the full
// per-peer backlog so stragglers catch up over successive heartbeats
// instead of needing a dedicated retry goroutine per proposal.
func (n *Node) broadcastAppendEntries() {
	n.mu.Lock()
	if n.volatile.Role != raftstate.Leader {
		n.mu.Unlock()
		return
	}
	term := n.persistent.CurrentTerm
	leaderCommit := n.volatile.CommitIndex
	peers := make(map[uint64]string, len(n.peers))
	for id, addr := range n.peers {
		peers[id] = addr
	}
	n.mu.Unlock()

	for id, addr := range peers {
		go n.replicateToPeer(id, addr, term, leaderCommit)
	}
}

func (n *Node) replicateToPeer(peerID uint64, addr string, term uint64, leaderCommit int64) {
	n.mu.Lock()
	if n.volatile.Role != raftstate.Leader || n.persistent.CurrentTerm != term {
		n.mu.Unlock()
		return
	}
	nextIndex := n.volatile.Leader.NextIndex[peerID]
	prevIndex := nextIndex - 1
	var prevTerm uint64
	if prevIndex >= 0 {
		if e, ok := n.persistent.EntryAt(prevIndex); ok {
			prevTerm = e.Term
		}
	}
	var wireEntries []raftrpc.Entry
	for idx := nextIndex; idx <= n.persistent.LastIndex(); idx++ {
		e, ok := n.persistent.EntryAt(idx)
		if !ok {
			break
		}
		wireEntries = append(wireEntries, raftrpc.Entry{Term: e.Term, Command: e.Command})
	}
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), n.tunables.RPCTimeout)
	defer cancel()
	reply, err := n.transport.SendAppendEntries(ctx, addr, raftrpc.AppendEntriesArgs{
		Term:         term,
		LeaderID:     n.id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      wireEntries,
		LeaderCommit: leaderCommit,
	})
	if err != nil {
		return // next heartbeat retries
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.volatile.Role != raftstate.Leader || n.persistent.CurrentTerm != term {
		return
	}
	if reply.Term > n.persistent.CurrentTerm {
		n.stepDownLocked(reply.Term)
		return
	}
	if reply.Success {
		if len(wireEntries) > 0 {
			matched := prevIndex + int64(len(wireEntries))
			n.volatile.Leader.MatchIndex[peerID] = matched
			n.volatile.Leader.NextIndex[peerID] = matched + 1
			n.advanceCommitLocked()
		}
		return
	}
	// Backtrack by one entry; the next heartbeat round will retry with an
	// earlier PrevLogIndex until the logs agree. Guarded against a
	// concurrent, newer round already having advanced NextIndex past
	// what this (now stale) round observed.
	if nextIndex > 0 && n.volatile.Leader.NextIndex[peerID] >= nextIndex {
		n.volatile.Leader.NextIndex[peerID] = nextIndex - 1
	}
}
