package raftnode

import (
	"context"
	"fmt"
	"sync"

	"raftchat/internal/raftrpc"
)

// fakeTransport routes RequestVote/AppendEntries directly into the
// receiving node's Handle* methods instead of going over a socket,
// grounded on the teacher's raftNetworkingMock (a map keyed by
// destination, with per-destination fault injection) but keyed by
// listen address, matching this repo's addr-based peer identification,
// and dispatching straight into a live *Node rather than a scripted
// response queue since these tests exercise real multi-node behavior.
type fakeTransport struct {
	mu      sync.Mutex
	nodes   map[string]*Node
	cutoff  map[string]bool
	sent    []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nodes: make(map[string]*Node), cutoff: make(map[string]bool)}
}

func (f *fakeTransport) register(addr string, n *Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[addr] = n
}

// partition makes every call to addr fail, simulating a downed or
// unreachable peer.
func (f *fakeTransport) partition(addr string, cut bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff[addr] = cut
}

func (f *fakeTransport) resolve(addr string) (*Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, addr)
	if f.cutoff[addr] {
		return nil, fmt.Errorf("fakeTransport: %s unreachable", addr)
	}
	n, ok := f.nodes[addr]
	if !ok {
		return nil, fmt.Errorf("fakeTransport: no node registered at %s", addr)
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
