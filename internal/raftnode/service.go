package raftnode

import "raftchat/internal/raftrpc"

// PeerService adapts a *Node to the net/rpc method signature
// (func(argType, *replyType) error), registered under
// rafttransport.PeerServiceName by cmd/raftchatd. Kept as a thin,
// separate type rather than exporting these methods on Node directly so
// Node's own API (Propose, ReadState, IsLeader) stays free of net/rpc's
// calling convention.
type PeerService struct {
	Node *Node
}

func (s *PeerService) RequestVote(args raftrpc.RequestVoteArgs, reply *raftrpc.RequestVoteReply) error {
	*reply = s.Node.HandleRequestVote(args)
	return nil
}

func (s *PeerService) AppendEntries(args raftrpc.AppendEntriesArgs, reply *raftrpc.AppendEntriesReply) error {
	*reply = s.Node.HandleAppendEntries(args)
	return nil
}
