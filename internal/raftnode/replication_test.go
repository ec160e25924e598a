package raftnode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"raftchat/internal/raftrpc"
	"raftchat/internal/raftstate"
	"raftchat/internal/statemachine"
)

func encodeCmd(t *testing.T, cmd statemachine.Command) []byte {
	t.Helper()
	b, err := statemachine.Encode(cmd)
	require.NoError(t, err)
	return b
}

func TestHandleAppendEntries_StaleTermRejected(t *testing.T) {
	n := newTestNode(t, 1, testCluster(3), newFakeTransport())
	n.persistent.CurrentTerm = 5

	reply := n.HandleAppendEntries(raftrpc.AppendEntriesArgs{Term: 3, LeaderID: 2, PrevLogIndex: -1})
	require.False(t, reply.Success)
	require.Equal(t, uint64(5), reply.Term)
}

func TestHandleAppendEntries_LogMatchingRejectsOnMismatch(t *testing.T) {
	n := newTestNode(t, 1, testCluster(3), newFakeTransport())
	n.persistent.Log = []raftstate.LogEntry{{Index: 0, Term: 1}}

	reply := n.HandleAppendEntries(raftrpc.AppendEntriesArgs{
		Term: 1, LeaderID: 2, PrevLogIndex: 0, PrevLogTerm: 2, // wrong prev term
	})
	require.False(t, reply.Success)
}

func TestHandleAppendEntries_TruncatesConflictingSuffix(t *testing.T) {
	n := newTestNode(t, 1, testCluster(3), newFakeTransport())
	n.persistent.CurrentTerm = 2
	n.persistent.Log = []raftstate.LogEntry{
		{Index: 0, Term: 1, Command: encodeCmd(t, statemachine.NewDeleteMessage(statemachine.DeleteMessageCmd{MessageID: 9}))},
		{Index: 1, Term: 1, Command: []byte("stale")},
	}
	require.NoError(t, n.store.AppendLog(n.persistent.Log))

	newEntry := raftrpc.Entry{Term: 2, Command: encodeCmd(t, statemachine.NewDeleteMessage(statemachine.DeleteMessageCmd{MessageID: 1}))}
	reply := n.HandleAppendEntries(raftrpc.AppendEntriesArgs{
		Term: 2, LeaderID: 2, PrevLogIndex: 0, PrevLogTerm: 1,
		Entries: []raftrpc.Entry{newEntry},
	})

	require.True(t, reply.Success)
	require.Len(t, n.persistent.Log, 2)
	require.Equal(t, uint64(2), n.persistent.Log[1].Term)

	stored, err := n.store.ScanLog()
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, uint64(2), stored[1].Term)
}

func TestHandleAppendEntries_CommitIndexClampedToLastNewEntry(t *testing.T) {
	n := newTestNode(t, 1, testCluster(3), newFakeTransport())
	n.persistent.CurrentTerm = 1

	entry := raftrpc.Entry{Term: 1, Command: encodeCmd(t, statemachine.NewCreateAccount(statemachine.CreateAccountCmd{
		Username: "alice", AssignedUserID: 1,
	}))}
	reply := n.HandleAppendEntries(raftrpc.AppendEntriesArgs{
		Term: 1, LeaderID: 2, PrevLogIndex: -1,
		Entries:      []raftrpc.Entry{entry},
		LeaderCommit: 10, // beyond what was actually sent
	})

	require.True(t, reply.Success)
	require.Equal(t, int64(0), n.volatile.CommitIndex)
	require.Equal(t, int64(0), n.volatile.LastApplied)

	u, ok := n.sm.User(1)
	require.True(t, ok)
	require.Equal(t, "alice", u.Username)
}

func TestHandleAppendEntries_DuplicateEntriesAreNotReappended(t *testing.T) {
	n := newTestNode(t, 1, testCluster(3), newFakeTransport())
	n.persistent.CurrentTerm = 1
	entry := raftrpc.Entry{Term: 1, Command: encodeCmd(t, statemachine.NewDeleteMessage(statemachine.DeleteMessageCmd{MessageID: 1}))}

	args := raftrpc.AppendEntriesArgs{Term: 1, LeaderID: 2, PrevLogIndex: -1, Entries: []raftrpc.Entry{entry}}
	require.True(t, n.HandleAppendEntries(args).Success)
	require.True(t, n.HandleAppendEntries(args).Success)

	require.Len(t, n.persistent.Log, 1)
	stored, err := n.store.ScanLog()
	require.NoError(t, err)
	require.Len(t, stored, 1)
}
