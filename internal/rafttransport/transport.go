// Package rafttransport is the outbound half of the peer RPC boundary:
// one reusable stub per peer (spec §4.5), dialed lazily and redialed on
// failure, with short per-call timeouts so a wedged peer never blocks the
// node's tick loop past the next heartbeat. Grounded on the teacher's
// raft_networking package (one persistent rpc.Client per peer, reconnect
// on dial failure) but built on net/rpc directly instead of the teacher's
// hand-rolled gob-over-TCP framing, since net/rpc already provides that
// framing — see SPEC_FULL.md §6.
package rafttransport

import (
	"context"
	"fmt"
	"net/rpc"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"raftchat/internal/raftrpc"
)

// Transport is the outbound face of peer RPCs that raftnode depends on.
// A fake implementation backs the in-process multi-node tests.
type Transport interface {
	SendRequestVote(ctx context.Context, peerAddr string, args raftrpc.RequestVoteArgs) (raftrpc.RequestVoteReply, error)
	SendAppendEntries(ctx context.Context, peerAddr string, args raftrpc.AppendEntriesArgs) (raftrpc.AppendEntriesReply, error)
}

// PeerServiceName is the net/rpc service name the receiving node
// registers its inbound handlers under (see raftnode.PeerService).
const PeerServiceName = "PeerService"

// RPCTransport is the net/rpc-backed Transport. It keeps at most one
// dialed *rpc.Client per peer address and redials on the next call after
// any failure, matching the teacher's "reconnect lazily, never block
// startup on a peer being down" behavior.
type RPCTransport struct {
	mu      sync.Mutex
	clients map[string]*rpc.Client
	log     *logrus.Entry
}

func NewRPCTransport(log *logrus.Entry) *RPCTransport {
	return &RPCTransport{clients: make(map[string]*rpc.Client), log: log}
}

func (t *RPCTransport) client(peerAddr string) (*rpc.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[peerAddr]; ok {
		return c, nil
	}
	c, err := rpc.Dial("tcp", peerAddr)
	if err != nil {
		return nil, fmt.Errorf("rafttransport: dial %s: %w", peerAddr, err)
	}
	t.clients[peerAddr] = c
	return c, nil
}

func (t *RPCTransport) drop(peerAddr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[peerAddr]; ok {
		_ = c.Close()
		delete(t.clients, peerAddr)
	}
}

// call performs one synchronous net/rpc call bounded by ctx, dropping the
// cached client on any error so the next call redials.
func (t *RPCTransport) call(ctx context.Context, peerAddr, method string, args, reply any) error {
	c, err := t.client(peerAddr)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	call := c.Go(method, args, reply, make(chan *rpc.Call, 1))
	go func() {
		select {
		case res := <-call.Done:
			done <- res.Error
		case <-ctx.Done():
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			t.drop(peerAddr)
		}
		return err
	case <-ctx.Done():
		t.drop(peerAddr)
		return ctx.Err()
	}
}

func (t *RPCTransport) SendRequestVote(ctx context.Context, peerAddr string, args raftrpc.RequestVoteArgs) (raftrpc.RequestVoteReply, error) {
	var reply raftrpc.RequestVoteReply
	err := t.call(ctx, peerAddr, PeerServiceName+".RequestVote", args, &reply)
	if err != nil && t.log != nil {
		t.log.WithError(err).WithField("peer", peerAddr).Debug("raft: RequestVote call failed")
	}
	return reply, err
}

func (t *RPCTransport) SendAppendEntries(ctx context.Context, peerAddr string, args raftrpc.AppendEntriesArgs) (raftrpc.AppendEntriesReply, error) {
	var reply raftrpc.AppendEntriesReply
	err := t.call(ctx, peerAddr, PeerServiceName+".AppendEntries", args, &reply)
	if err != nil && t.log != nil {
		t.log.WithError(err).WithField("peer", peerAddr).Debug("raft: AppendEntries call failed")
	}
	return reply, err
}

// WithTimeout is a small helper so callers don't repeat
// context.WithTimeout(context.Background(), d) at every call site.
func WithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
