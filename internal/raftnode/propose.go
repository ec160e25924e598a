package raftnode

import (
	"context"

	"raftchat/internal/raftstate"
	"raftchat/internal/statemachine"
)

// Propose is the write path of spec §4.4/§5: only the leader accepts
// proposals. It appends cmd to the local log, persists it, kicks off
// replication, and blocks until the entry is applied (or ctx expires, or
// this node loses leadership for the entry's term). Grounded on the
// teacher's handleWriteClientCommand, generalized from the teacher's
// single fire-and-forget replication goroutine to per-peer continuous
// replication driven by the tick loop (see replication.go), with an
// immediate replication kick here so a proposal doesn't have to wait for
// the next heartbeat tick.
func (n *Node) Propose(ctx context.Context, cmd statemachine.Command) (statemachine.Reply, error) {
	return n.ProposeBuilt(ctx, func(*statemachine.State) statemachine.Command { return cmd })
}

// ProposeBuilt is Propose's general form: build runs under the node's
// lock, immediately before the command is appended to the log, so a
// builder that reads applied state to mint an id (CreateAccount's
// assigned_user_id, SendMessage's assigned_message_id — spec §3) can't
// race a concurrent proposal reading the same id.
func (n *Node) ProposeBuilt(ctx context.Context, build func(*statemachine.State) statemachine.Command) (statemachine.Reply, error) {
	n.mu.Lock()
	if n.volatile.Role != raftstate.Leader {
		hint := n.volatile.LeaderHint
		n.mu.Unlock()
		return statemachine.Reply{}, &NotLeaderError{LeaderHint: hint}
	}

	cmd := build(n.sm)
	encoded, err := statemachine.Encode(cmd)
	if err != nil {
		n.mu.Unlock()
		return statemachine.Reply{}, err
	}
	term := n.persistent.CurrentTerm
	index := uint64(n.persistent.LastIndex() + 1)
	entry := raftstate.LogEntry{Index: index, Term: term, Command: encoded}
	n.persistent.Log = append(n.persistent.Log, entry)
	if err := n.store.AppendLog([]raftstate.LogEntry{entry}); err != nil {
		n.persistent.TruncateFrom(int64(index))
		n.mu.Unlock()
		return statemachine.Reply{}, err
	}

	w := &waiter{index: index, term: term, done: make(chan waitResult, 1)}
	n.waiters = append(n.waiters, w)
	n.mu.Unlock()

	go n.broadcastAppendEntries()

	select {
	case res := <-w.done:
		return res.reply, res.err
	case <-ctx.Done():
		n.removeWaiter(w)
		return statemachine.Reply{}, ErrProposalTimedOut
	}
}

// notifyWaitersLocked wakes every waiter parked on index, called once
// that index has just been applied. Caller holds n.mu.
func (n *Node) notifyWaitersLocked(index uint64, term uint64, reply statemachine.Reply) {
	remaining := n.waiters[:0]
	for _, w := range n.waiters {
		if w.index == index {
			w.done <- waitResult{reply: reply}
			continue
		}
		remaining = append(remaining, w)
	}
	n.waiters = remaining
}

// failWaitersLocked wakes every still-pending waiter with err, used when
// this node steps down mid-proposal and can no longer promise the entry
// will ever commit in its original term. Caller holds n.mu.
func (n *Node) failWaitersLocked(err error) {
	for _, w := range n.waiters {
		w.done <- waitResult{err: err}
	}
	n.waiters = nil
}

func (n *Node) removeWaiter(target *waiter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	remaining := n.waiters[:0]
	for _, w := range n.waiters {
		if w != target {
			remaining = append(remaining, w)
		}
	}
	n.waiters = remaining
}

// ReadState gives the router safe, serialized read access to the
// currently-applied state machine for read-only RPCs (spec §4.4's "reads
// are served from locally-applied state without going through Raft").
func (n *Node) ReadState(fn func(*statemachine.State)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn(n.sm)
}

// IsLeader reports whether this node currently believes itself the
// leader, and the address of the last known leader (itself if so).
func (n *Node) IsLeader() (bool, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.volatile.Role == raftstate.Leader, n.volatile.LeaderHint
}
