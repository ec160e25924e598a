package router_test

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"raftchat/internal/config"
	"raftchat/internal/raftnode"
	"raftchat/internal/raftrpc"
	"raftchat/internal/router"
	"raftchat/internal/session"
	"raftchat/internal/store"
)

// fakeTransport is router_test's own copy of raftnode's in-process test
// transport (unexported there, so it can't be reused directly): it
// routes peer RPCs straight into a registered *raftnode.Node instead of
// over a socket, the in-process-cluster harness spec §8's end-to-end
// scenarios call for.
type fakeTransport struct {
	mu    sync.Mutex
	nodes map[string]*raftnode.Node
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nodes: make(map[string]*raftnode.Node)}
}

func (f *fakeTransport) register(addr string, n *raftnode.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[addr] = n
}

func (f *fakeTransport) resolve(addr string) (*raftnode.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[addr]
	if !ok {
		return nil, fmt.Errorf("fakeTransport: no node at %s", addr)
	}
	return n, nil
}

func (f *fakeTransport) SendRequestVote(ctx context.Context, addr string, args raftrpc.RequestVoteArgs) (raftrpc.RequestVoteReply, error) {
	n, err := f.resolve(addr)
	if err != nil {
		return raftrpc.RequestVoteReply{}, err
	}
	return n.HandleRequestVote(args), nil
}

func (f *fakeTransport) SendAppendEntries(ctx context.Context, addr string, args raftrpc.AppendEntriesArgs) (raftrpc.AppendEntriesReply, error) {
	n, err := f.resolve(addr)
	if err != nil {
		return raftrpc.AppendEntriesReply{}, err
	}
	return n.HandleAppendEntries(args), nil
}

type testCluster struct {
	routers []*router.Router
	nodes   []*raftnode.Node
}

func startTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()
	cluster := make(config.Cluster, n)
	for i := 1; i <= n; i++ {
		cluster[uint64(i)] = fmt.Sprintf("node-%d:0", i)
	}

	tunables := config.Tunables{
		ElectionTimeoutMin: 30 * time.Millisecond,
		ElectionTimeoutMax: 60 * time.Millisecond,
		HeartbeatInterval:  5 * time.Millisecond,
		RPCTimeout:         20 * time.Millisecond,
		ProposalTimeout:    time.Second,
	}

	transport := newFakeTransport()
	log := logrus.New()
	log.SetOutput(io.Discard)

	tc := &testCluster{}
	ctx, cancel := context.WithCancel(context.Background())
	for i := 1; i <= n; i++ {
		st, err := store.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })

		node, err := raftnode.New(uint64(i), cluster, tunables, st, transport, logrus.NewEntry(log))
		require.NoError(t, err)
		transport.register(cluster[uint64(i)], node)
		tc.nodes = append(tc.nodes, node)
		tc.routers = append(tc.routers, router.New(node, session.NewTable(), tunables))
		go node.Run(ctx)
	}
	t.Cleanup(func() {
		cancel()
		for _, node := range tc.nodes {
			node.Stop()
		}
	})
	return tc
}

// leaderRouter polls until some node believes itself the leader and
// returns the Router in front of it, the entry point every mutating
// scenario below proposes through.
func (tc *testCluster) leaderRouter(t *testing.T) *router.Router {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for i, n := range tc.nodes {
			if ok, _ := n.IsLeader(); ok {
				return tc.routers[i]
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no leader elected before timeout")
	return nil
}

func (tc *testCluster) followerRouter(t *testing.T) *router.Router {
	t.Helper()
	for i, n := range tc.nodes {
		if ok, _ := n.IsLeader(); !ok {
			return tc.routers[i]
		}
	}
	t.Fatal("every node believes itself leader")
	return nil
}

func hash(s string) [32]byte { return sha256.Sum256([]byte(s)) }

func TestScenario_CreateAccountLoginSendRead(t *testing.T) {
	tc := startTestCluster(t, 3)
	r := tc.leaderRouter(t)

	_, rErr := r.CreateAccount(router.CreateAccountArgs{Username: "alice", PasswordHash: hash("pw1")})
	require.Nil(t, rErr)

	// CreateAccount mints its own session; Login (a separate call) mints
	// a fresh one that supersedes it, per spec §9's "a second login
	// invalidates the first session" rule.
	loginReply, rErr := r.Login(router.LoginArgs{Username: "alice", PasswordHash: hash("pw1")})
	require.Nil(t, rErr)
	require.Equal(t, router.LoginSuccess, loginReply.Status)

	_, rErr = r.CreateAccount(router.CreateAccountArgs{Username: "bob", PasswordHash: hash("pw2")})
	require.Nil(t, rErr)

	_, rErr = r.SendMessage(router.SendMessageArgs{
		SenderID: 1, Token: loginReply.SessionToken, RecipientID: 2, Content: "hi bob",
	})
	require.Nil(t, rErr)

	unread, rErr := r.GetUnreadMessages(router.GetUnreadMessagesArgs{UserID: 2, Token: bobLoginToken(t, r, "bob", "pw2")})
	require.Nil(t, rErr)
	require.Equal(t, uint32(1), unread.Count)
	require.Equal(t, uint32(1), unread.Messages[0].SenderID)
}

func bobLoginToken(t *testing.T, r *router.Router, username, password string) [32]byte {
	t.Helper()
	reply, rErr := r.Login(router.LoginArgs{Username: username, PasswordHash: hash(password)})
	require.Nil(t, rErr)
	return reply.SessionToken
}

func TestScenario_LoginWithWrongPasswordFails(t *testing.T) {
	tc := startTestCluster(t, 3)
	r := tc.leaderRouter(t)

	_, rErr := r.CreateAccount(router.CreateAccountArgs{Username: "alice", PasswordHash: hash("right")})
	require.Nil(t, rErr)

	reply, rErr := r.Login(router.LoginArgs{Username: "alice", PasswordHash: hash("wrong")})
	require.Nil(t, rErr)
	require.Equal(t, router.LoginFailure, reply.Status)
}

func TestScenario_MutatingRPCOnFollowerReturnsLeaderHint(t *testing.T) {
	tc := startTestCluster(t, 3)
	tc.leaderRouter(t) // ensure a leader exists
	follower := tc.followerRouter(t)

	_, rErr := follower.CreateAccount(router.CreateAccountArgs{Username: "alice", PasswordHash: hash("pw")})
	require.NotNil(t, rErr)
	require.Equal(t, router.FailedPrecondition, rErr.Code)
	require.NotEmpty(t, rErr.LeaderHint)
}

func TestScenario_DeleteAccountCascadesMessagesAndInvalidatesSession(t *testing.T) {
	tc := startTestCluster(t, 3)
	r := tc.leaderRouter(t)

	aliceCreate, rErr := r.CreateAccount(router.CreateAccountArgs{Username: "alice", PasswordHash: hash("pw1")})
	require.Nil(t, rErr)
	_, rErr = r.CreateAccount(router.CreateAccountArgs{Username: "bob", PasswordHash: hash("pw2")})
	require.Nil(t, rErr)

	_, rErr = r.SendMessage(router.SendMessageArgs{SenderID: 1, Token: aliceCreate.SessionToken, RecipientID: 2, Content: "hi"})
	require.Nil(t, rErr)

	_, rErr = r.DeleteAccount(router.DeleteAccountArgs{UserID: 1, Token: aliceCreate.SessionToken})
	require.Nil(t, rErr)

	convo, rErr := r.DisplayConversation(router.DisplayConversationArgs{
		UserID: 2, Token: bobLoginToken(t, r, "bob", "pw2"), ConversantID: 1,
	})
	require.Nil(t, rErr)
	require.Equal(t, uint32(0), convo.Count)

	_, rErr = r.DeleteMessage(router.DeleteMessageArgs{UserID: 1, MessageID: 1, Token: aliceCreate.SessionToken})
	require.NotNil(t, rErr)
	require.Equal(t, router.Unauthenticated, rErr.Code)
}

func TestScenario_UnauthenticatedRequestRejected(t *testing.T) {
	tc := startTestCluster(t, 3)
	r := tc.leaderRouter(t)

	_, rErr := r.GetUnreadMessages(router.GetUnreadMessagesArgs{UserID: 1, Token: [32]byte{1, 2, 3}})
	require.NotNil(t, rErr)
	require.Equal(t, router.Unauthenticated, rErr.Code)
}

func TestScenario_GetUserByUsernameNotFound(t *testing.T) {
	tc := startTestCluster(t, 3)
	r := tc.leaderRouter(t)

	reply, rErr := r.GetUserByUsername(router.GetUserByUsernameArgs{Username: "ghost"})
	require.Nil(t, rErr)
	require.Equal(t, router.LookupNotFound, reply.Status)
}
