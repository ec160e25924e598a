package raftnode

import (
	"sort"

	"raftchat/internal/statemachine"
)

// advanceCommitLocked implements spec §4.1's commit rule: an index is
// committed once it's stored on a majority of nodes AND its entry's
// term equals the leader's current term (the current-term-only
// restriction that prevents committing a previous leader's entries by
// majority-count coincidence alone). Caller holds n.mu and is the
// leader.
func (n *Node) advanceCommitLocked() {
	matchIndexes := make([]int64, 0, len(n.peers)+1)
	matchIndexes = append(matchIndexes, n.persistent.LastIndex()) // leader always matches itself
	for _, idx := range n.volatile.Leader.MatchIndex {
		matchIndexes = append(matchIndexes, idx)
	}
	sort.Slice(matchIndexes, func(i, j int) bool { return matchIndexes[i] > matchIndexes[j] })

	quorum := len(n.cluster)/2 + 1
	candidate := matchIndexes[quorum-1]
	if candidate <= n.volatile.CommitIndex {
		return
	}
	entry, ok := n.persistent.EntryAt(candidate)
	if !ok || entry.Term != n.persistent.CurrentTerm {
		return
	}
	n.volatile.CommitIndex = candidate
	n.applyCommittedLocked()
}

// applyCommittedLocked advances LastApplied up to CommitIndex, applying
// each entry's command to the state machine and persisting the
// resulting rows, in strict log order (spec §4.4: "apply order equals
// log order equals commit order"). Waiters parked by Propose for an
// applied index are woken with that entry's reply. Caller holds n.mu.
func (n *Node) applyCommittedLocked() {
	for n.volatile.LastApplied < n.volatile.CommitIndex {
		idx := n.volatile.LastApplied + 1
		entry, ok := n.persistent.EntryAt(idx)
		if !ok {
			break
		}
		cmd, err := statemachine.Decode(entry.Command)
		if err != nil {
			n.log.WithError(err).WithField("index", idx).Error("raft: decode committed entry failed")
			break
		}
		reply := n.sm.Apply(cmd)
		if err := n.persistApplyLocked(cmd, reply); err != nil {
			n.log.WithError(err).WithField("index", idx).Error("raft: persist applied entry failed")
			break
		}
		n.volatile.LastApplied = idx
		n.notifyWaitersLocked(uint64(idx), entry.Term, reply)
	}
}

// persistApplyLocked writes the state machine's durable row changes for
// one applied command. Each Store.Upsert*/Delete* call below is its own
// write, issued in sequence; they share no transaction with each other
// or with the earlier log append, so a crash between calls can leave
// only some of one entry's rows written.
func (n *Node) persistApplyLocked(cmd statemachine.Command, reply statemachine.Reply) error {
	if reply.Rejected {
		return nil
	}
	switch cmd.Kind {
	case statemachine.KindCreateAccount:
		u, _ := n.sm.User(reply.CreateAccount.UserID)
		return n.store.UpsertUser(u)
	case statemachine.KindDeleteAccount:
		for _, id := range reply.DeleteAccount.DeletedMessageIDs {
			if err := n.store.DeleteMessage(id); err != nil {
				return err
			}
		}
		for _, id := range reply.DeleteAccount.TouchedUserIDs {
			u, _ := n.sm.User(id)
			if err := n.store.UpsertUser(u); err != nil {
				return err
			}
		}
		return n.store.DeleteUser(cmd.DeleteAccount.UserID)
	case statemachine.KindSendMessage:
		m, _ := n.sm.Message(cmd.SendMessage.AssignedMessageID)
		if err := n.store.UpsertMessage(m); err != nil {
			return err
		}
		sender, _ := n.sm.User(cmd.SendMessage.SenderID)
		if err := n.store.UpsertUser(sender); err != nil {
			return err
		}
		recipient, _ := n.sm.User(cmd.SendMessage.RecipientID)
		return n.store.UpsertUser(recipient)
	case statemachine.KindMarkRead:
		m, _ := n.sm.Message(cmd.MarkRead.MessageID)
		if err := n.store.UpsertMessage(m); err != nil {
			return err
		}
		u, _ := n.sm.User(cmd.MarkRead.UserID)
		return n.store.UpsertUser(u)
	case statemachine.KindReadN:
		for _, id := range reply.ReadN.MessageIDs {
			m, _ := n.sm.Message(id)
			if err := n.store.UpsertMessage(m); err != nil {
				return err
			}
		}
		u, _ := n.sm.User(cmd.ReadN.UserID)
		return n.store.UpsertUser(u)
	case statemachine.KindDeleteMessage:
		return n.store.DeleteMessage(cmd.DeleteMessage.MessageID)
	default:
		return nil
	}
}
