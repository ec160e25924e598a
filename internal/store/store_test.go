package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"raftchat/internal/raftstate"
	"raftchat/internal/statemachine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMeta_PutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.GetMeta(MetaCurrentTerm)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.PutMeta(MetaCurrentTerm, []byte{0, 0, 0, 7}))
	value, ok, err := s.GetMeta(MetaCurrentTerm)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0, 0, 0, 7}, value)

	// overwrite
	require.NoError(t, s.PutMeta(MetaCurrentTerm, []byte{0, 0, 0, 8}))
	value, _, err = s.GetMeta(MetaCurrentTerm)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 8}, value)
}

func TestLog_AppendScanTruncate(t *testing.T) {
	s := openTestStore(t)

	entries := []raftstate.LogEntry{
		{Index: 0, Term: 1, Command: []byte("a")},
		{Index: 1, Term: 1, Command: []byte("b")},
		{Index: 2, Term: 2, Command: []byte("c")},
	}
	require.NoError(t, s.AppendLog(entries))

	scanned, err := s.ScanLog()
	require.NoError(t, err)
	require.Equal(t, entries, scanned)

	require.NoError(t, s.TruncateLog(1))
	scanned, err = s.ScanLog()
	require.NoError(t, err)
	require.Equal(t, entries[:1], scanned)
}

func TestUser_UpsertScanDelete(t *testing.T) {
	s := openTestStore(t)

	u := statemachine.User{
		ID:                1,
		Username:          "alice",
		Unread:            []uint32{1, 2},
		RecentConversants: []uint32{2},
	}
	u.PasswordHash[0] = 0xAB

	require.NoError(t, s.UpsertUser(u))

	users, err := s.ScanUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, u, users[0])

	require.NoError(t, s.DeleteUser(1))
	users, err = s.ScanUsers()
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestMessage_UpsertScanDelete(t *testing.T) {
	s := openTestStore(t)

	m := statemachine.Message{ID: 1, SenderID: 1, ReceiverID: 2, Content: "hi", Read: false, Timestamp: 42}
	require.NoError(t, s.UpsertMessage(m))

	messages, err := s.ScanMessages()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, m, messages[0])

	require.NoError(t, s.DeleteMessage(1))
	messages, err = s.ScanMessages()
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestRestoreState_RebuildsIndicesFromRows(t *testing.T) {
	s := openTestStore(t)

	alice := statemachine.User{ID: 1, Username: "alice"}
	bob := statemachine.User{ID: 2, Username: "bob", Unread: []uint32{2}}
	require.NoError(t, s.UpsertUser(alice))
	require.NoError(t, s.UpsertUser(bob))

	require.NoError(t, s.UpsertMessage(statemachine.Message{ID: 1, SenderID: 1, ReceiverID: 2, Content: "m1"}))
	require.NoError(t, s.UpsertMessage(statemachine.Message{ID: 2, SenderID: 1, ReceiverID: 2, Content: "m2"}))

	state, err := s.RestoreState()
	require.NoError(t, err)

	require.Equal(t, []uint32{1, 2}, state.Conversation(1, 2))
	require.Equal(t, []uint32{2}, state.Unread(2))

	_, ok := state.UserByUsername("alice")
	require.True(t, ok)
}
