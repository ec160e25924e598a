package raftnode

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"raftchat/internal/config"
	"raftchat/internal/store"
)

func peerAddr(id uint64) string { return fmt.Sprintf("node-%d:0", id) }

func testCluster(n int) config.Cluster {
	c := make(config.Cluster, n)
	for i := 1; i <= n; i++ {
		c[uint64(i)] = peerAddr(uint64(i))
	}
	return c
}

// fastTunables shortens every Raft timer so multi-node tests converge in
// milliseconds instead of the production defaults' hundreds.
func fastTunables() config.Tunables {
	return config.Tunables{
		ElectionTimeoutMin: 30 * time.Millisecond,
		ElectionTimeoutMax: 60 * time.Millisecond,
		HeartbeatInterval:  5 * time.Millisecond,
		RPCTimeout:         20 * time.Millisecond,
		ProposalTimeout:    time.Second,
	}
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// newTestNode builds a single node against an in-memory store with a
// discarding logger. Handler-level tests use it without calling Run;
// startTestCluster starts Run on each node it builds.
func newTestNode(t *testing.T, id uint64, cluster config.Cluster, transport *fakeTransport) *Node {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	n, err := New(id, cluster, fastTunables(), st, transport, testLogger())
	require.NoError(t, err)
	transport.register(cluster[id], n)
	return n
}
