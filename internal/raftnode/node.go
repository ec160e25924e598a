// Package raftnode is the Raft core (spec §4): a single-goroutine tick
// loop driving elections, log replication, commit advancement, and the
// apply loop that feeds committed commands into the state machine and the
// durable store. Grounded on the teacher's node package (select-loop over
// a timer and an inbound-command channel, one state mutex guarding
// PersistentState/VolatileState) generalized from the teacher's
// single-command GET/SET/DEL application to the statemachine package's
// six commands, and from the teacher's ad-hoc per-command goroutines to
// explicit per-peer nextIndex/matchIndex tracking (spec §4.3).
package raftnode

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"raftchat/internal/config"
	"raftchat/internal/raftstate"
	"raftchat/internal/rafttransport"
	"raftchat/internal/statemachine"
	"raftchat/internal/store"
)

// waiter is parked by Propose until the entry at Index is applied (or the
// node loses leadership in that term, or the proposer's context expires).
type waiter struct {
	index uint64
	term  uint64
	done  chan waitResult
}

type waitResult struct {
	reply statemachine.Reply
	err   error
}

// Node is one Raft participant. All fields below mu are only touched
// while holding it, matching the teacher's single node.stateMutex.
type Node struct {
	id       uint64
	peers    map[uint64]string // cluster members other than id
	cluster  config.Cluster
	tunables config.Tunables

	transport rafttransport.Transport
	store     *store.Store
	log       *logrus.Entry

	mu               sync.Mutex
	persistent       raftstate.Persistent
	volatile         raftstate.Volatile
	sm               *statemachine.State
	electionDeadline time.Time

	waiters []*waiter

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Node, restoring persistent state and the applied
// state machine from st (spec §3: "every in-memory index is rebuilt from
// durable rows on startup").
func New(id uint64, cluster config.Cluster, tunables config.Tunables, st *store.Store, transport rafttransport.Transport, log *logrus.Entry) (*Node, error) {
	if _, ok := cluster[id]; !ok {
		return nil, fmt.Errorf("raftnode: node id %d not present in cluster config", id)
	}
	if err := tunables.Validate(); err != nil {
		return nil, err
	}

	entries, err := st.ScanLog()
	if err != nil {
		return nil, fmt.Errorf("raftnode: restore log: %w", err)
	}
	currentTerm, votedFor, err := loadTermAndVote(st)
	if err != nil {
		return nil, err
	}
	sm, err := st.RestoreState()
	if err != nil {
		return nil, fmt.Errorf("raftnode: restore state machine: %w", err)
	}

	peers := make(map[uint64]string, len(cluster)-1)
	for peerID, addr := range cluster {
		if peerID != id {
			peers[peerID] = addr
		}
	}

	n := &Node{
		id:        id,
		peers:     peers,
		cluster:   cluster,
		tunables:  tunables,
		transport: transport,
		store:     st,
		log:       log.WithField("node", id),
		persistent: raftstate.Persistent{
			CurrentTerm: currentTerm,
			VotedFor:    votedFor,
			Log:         entries,
		},
		volatile: raftstate.Volatile{
			CommitIndex: -1,
			LastApplied: -1,
			Role:        raftstate.Follower,
		},
		sm:     sm,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	return n, nil
}

func loadTermAndVote(st *store.Store) (uint64, int64, error) {
	termBytes, ok, err := st.GetMeta(store.MetaCurrentTerm)
	if err != nil {
		return 0, raftstate.NoVote, err
	}
	var term uint64
	if ok && len(termBytes) == 8 {
		term = beUint64(termBytes)
	}

	votedBytes, ok, err := st.GetMeta(store.MetaVotedFor)
	if err != nil {
		return 0, raftstate.NoVote, err
	}
	votedFor := int64(raftstate.NoVote)
	if ok && len(votedBytes) == 8 {
		if marker := beUint64(votedBytes); marker != ^uint64(0) {
			votedFor = int64(marker)
		}
	}
	return term, votedFor, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func toBeBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// persistTermAndVote writes CurrentTerm/VotedFor durably. Called with mu
// held, every time either changes, per spec §3's "persist before replying
// to any RPC that depends on it" rule.
func (n *Node) persistTermAndVote() error {
	if err := n.store.PutMeta(store.MetaCurrentTerm, toBeBytes(n.persistent.CurrentTerm)); err != nil {
		return err
	}
	marker := ^uint64(0) // sentinel for raftstate.NoVote
	if n.persistent.VotedFor != raftstate.NoVote {
		marker = uint64(n.persistent.VotedFor)
	}
	return n.store.PutMeta(store.MetaVotedFor, toBeBytes(marker))
}

// ID reports this node's id.
func (n *Node) ID() uint64 { return n.id }

// Run drives the tick loop until ctx is cancelled or Stop is called.
// Grounded on the teacher's node.Start select loop, generalized from a
// single timer.Timeout to one ticker at heartbeat cadence plus a
// separately tracked election deadline, checked on every tick, so a
// leader's heartbeat cadence never depends on a follower's election timer.
func (n *Node) Run(ctx context.Context) {
	defer close(n.doneCh)

	n.mu.Lock()
	n.resetElectionDeadlineLocked()
	n.mu.Unlock()

	ticker := time.NewTicker(n.tunables.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.tick()
		}
	}
}

// Stop signals Run to exit and waits for it to return.
func (n *Node) Stop() {
	close(n.stopCh)
	<-n.doneCh
}

func (n *Node) tick() {
	n.mu.Lock()
	role := n.volatile.Role
	expired := time.Now().After(n.electionDeadline)
	n.mu.Unlock()

	if role == raftstate.Leader {
		n.broadcastAppendEntries()
		return
	}
	if expired {
		n.startElection()
	}
}

func (n *Node) resetElectionDeadlineLocked() {
	span := n.tunables.ElectionTimeoutMax - n.tunables.ElectionTimeoutMin
	jitter := time.Duration(0)
	if span > 0 {
		jitter = time.Duration(rand.Int63n(int64(span)))
	}
	n.electionDeadline = time.Now().Add(n.tunables.ElectionTimeoutMin + jitter)
}
