package router

import (
	"context"

	"raftchat/internal/config"
	"raftchat/internal/raftnode"
	"raftchat/internal/session"
	"raftchat/internal/statemachine"
)

// Router dispatches the thirteen application RPCs of spec §6 against a
// single node, proposing mutations through Raft and serving reads
// straight from the node's last-applied state.
type Router struct {
	node     *raftnode.Node
	sessions *session.Table
	tunables config.Tunables
}

func New(node *raftnode.Node, sessions *session.Table, tunables config.Tunables) *Router {
	return &Router{node: node, sessions: sessions, tunables: tunables}
}

// propose is the shared mutating-RPC path: reject up front if this node
// isn't the leader (spec §4.4 "must go through Raft"), otherwise block
// until the entry commits and applies.
func (r *Router) propose(cmd statemachine.Command) (statemachine.Reply, *Error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.tunables.ProposalTimeout)
	defer cancel()

	reply, err := r.node.Propose(ctx, cmd)
	if rErr := translateProposeError(err); rErr != nil {
		return statemachine.Reply{}, rErr
	}
	return reply, nil
}

func translateProposeError(err error) *Error {
	if err == nil {
		return nil
	}
	if nl, ok := err.(*raftnode.NotLeaderError); ok {
		return notLeader(nl.LeaderHint)
	}
	if err == raftnode.ErrProposalTimedOut {
		return deadlineExceeded()
	}
	return unavailable(err.Error())
}

func (r *Router) authenticate(userID uint32, token [32]byte) *Error {
	if !r.sessions.Validate(userID, session.Token(token)) {
		return unauthenticated()
	}
	return nil
}

// --- mutating RPCs ---

func (r *Router) CreateAccount(args CreateAccountArgs) (CreateAccountReply, *Error) {
	// user_id is assigned by the leader immediately before append, under
	// the node's lock (raftnode.Node.ProposeBuilt), so every replica
	// applies an identical, uncontested id (spec §3). The token is minted
	// just before that and captured into the same command.
	tok, tokErr := session.NewToken()
	if tokErr != nil {
		return CreateAccountReply{}, internal(tokErr.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.tunables.ProposalTimeout)
	defer cancel()
	reply, err := r.node.ProposeBuilt(ctx, func(s *statemachine.State) statemachine.Command {
		return statemachine.NewCreateAccount(statemachine.CreateAccountCmd{
			Username:       args.Username,
			PasswordHash:   args.PasswordHash,
			AssignedUserID: s.MaxUserID() + 1,
			Token:          [32]byte(tok),
		})
	})
	if rErr := translateProposeError(err); rErr != nil {
		return CreateAccountReply{}, rErr
	}
	if reply.Rejected {
		return CreateAccountReply{}, internal(reply.Reason)
	}
	r.sessions.Put(reply.CreateAccount.UserID, session.Token(reply.CreateAccount.Token))
	return CreateAccountReply{SessionToken: reply.CreateAccount.Token}, nil
}

// Login is spec §4.4's special case: authentication is a read against
// applied state (password_hash comparison), but success mints a local,
// non-replicated session (spec §9 "session tokens not replicated").
func (r *Router) Login(args LoginArgs) (LoginReply, *Error) {
	var (
		userID uint32
		user   statemachine.User
		found  bool
	)
	r.node.ReadState(func(s *statemachine.State) {
		id, ok := s.UserByUsername(args.Username)
		if !ok {
			return
		}
		u, ok := s.User(id)
		if !ok {
			return
		}
		userID, user, found = id, u, true
	})
	if !found || user.PasswordHash != args.PasswordHash {
		return LoginReply{Status: LoginFailure}, nil
	}

	token, err := session.NewToken()
	if err != nil {
		return LoginReply{}, internal(err.Error())
	}
	r.sessions.Put(userID, token)

	var unreadCount uint32
	r.node.ReadState(func(s *statemachine.State) {
		unreadCount = uint32(len(s.Unread(userID)))
	})
	return LoginReply{Status: LoginSuccess, SessionToken: [32]byte(token), UnreadCount: unreadCount}, nil
}

func (r *Router) SendMessage(args SendMessageArgs) (SendMessageReply, *Error) {
	if err := r.authenticate(args.SenderID, args.Token); err != nil {
		return SendMessageReply{}, err
	}

	timestamp := leaderWallClock()
	ctx, cancel := context.WithTimeout(context.Background(), r.tunables.ProposalTimeout)
	defer cancel()
	reply, err := r.node.ProposeBuilt(ctx, func(s *statemachine.State) statemachine.Command {
		return statemachine.NewSendMessage(statemachine.SendMessageCmd{
			SenderID:          args.SenderID,
			RecipientID:       args.RecipientID,
			Content:           args.Content,
			AssignedMessageID: s.MaxMessageID() + 1,
			Timestamp:         timestamp,
		})
	})
	if rErr := translateProposeError(err); rErr != nil {
		return SendMessageReply{}, rErr
	}
	if reply.Rejected {
		return SendMessageReply{}, internal(reply.Reason)
	}
	return SendMessageReply{}, nil
}

func (r *Router) ReadMessages(args ReadMessagesArgs) (ReadMessagesReply, *Error) {
	if err := r.authenticate(args.UserID, args.Token); err != nil {
		return ReadMessagesReply{}, err
	}
	reply, rErr := r.propose(statemachine.NewReadN(statemachine.ReadNCmd{UserID: args.UserID, N: args.N}))
	if rErr != nil {
		return ReadMessagesReply{}, rErr
	}
	if reply.Rejected {
		return ReadMessagesReply{}, internal(reply.Reason)
	}
	return ReadMessagesReply{}, nil
}

func (r *Router) DeleteMessage(args DeleteMessageArgs) (DeleteMessageReply, *Error) {
	if err := r.authenticate(args.UserID, args.Token); err != nil {
		return DeleteMessageReply{}, err
	}
	reply, rErr := r.propose(statemachine.NewDeleteMessage(statemachine.DeleteMessageCmd{MessageID: args.MessageID}))
	if rErr != nil {
		return DeleteMessageReply{}, rErr
	}
	if reply.Rejected {
		return DeleteMessageReply{}, internal(reply.Reason)
	}
	return DeleteMessageReply{}, nil
}

func (r *Router) DeleteAccount(args DeleteAccountArgs) (DeleteAccountReply, *Error) {
	if err := r.authenticate(args.UserID, args.Token); err != nil {
		return DeleteAccountReply{}, err
	}
	reply, rErr := r.propose(statemachine.NewDeleteAccount(statemachine.DeleteAccountCmd{UserID: args.UserID}))
	if rErr != nil {
		return DeleteAccountReply{}, rErr
	}
	if reply.Rejected {
		return DeleteAccountReply{}, internal(reply.Reason)
	}
	r.sessions.Drop(args.UserID)
	return DeleteAccountReply{}, nil
}

func (r *Router) MarkMessageAsRead(args MarkMessageAsReadArgs) (MarkMessageAsReadReply, *Error) {
	if err := r.authenticate(args.UserID, args.Token); err != nil {
		return MarkMessageAsReadReply{}, err
	}
	reply, rErr := r.propose(statemachine.NewMarkRead(statemachine.MarkReadCmd{UserID: args.UserID, MessageID: args.MessageID}))
	if rErr != nil {
		return MarkMessageAsReadReply{}, rErr
	}
	if reply.Rejected {
		return MarkMessageAsReadReply{}, internal(reply.Reason)
	}
	return MarkMessageAsReadReply{}, nil
}

// --- read-only RPCs ---

func (r *Router) ListAccounts(args ListAccountsArgs) (ListAccountsReply, *Error) {
	if err := r.authenticate(args.UserID, args.Token); err != nil {
		return ListAccountsReply{}, err
	}
	var names []string
	r.node.ReadState(func(s *statemachine.State) {
		names = s.ListUsernames(args.Wildcard)
	})
	return ListAccountsReply{Count: uint32(len(names)), Usernames: names}, nil
}

func (r *Router) DisplayConversation(args DisplayConversationArgs) (DisplayConversationReply, *Error) {
	if err := r.authenticate(args.UserID, args.Token); err != nil {
		return DisplayConversationReply{}, err
	}
	var out []ConversationMessage
	r.node.ReadState(func(s *statemachine.State) {
		ids := s.Conversation(args.UserID, args.ConversantID)
		for _, id := range ids {
			m, ok := s.Message(id)
			if !ok {
				continue
			}
			out = append(out, ConversationMessage{
				MessageID:  m.ID,
				SenderFlag: m.SenderID == args.UserID,
				Content:    m.Content,
			})
		}
	})
	return DisplayConversationReply{Count: uint32(len(out)), Messages: out}, nil
}

func (r *Router) GetUnreadMessages(args GetUnreadMessagesArgs) (GetUnreadMessagesReply, *Error) {
	if err := r.authenticate(args.UserID, args.Token); err != nil {
		return GetUnreadMessagesReply{}, err
	}
	var out []UnreadMessage
	r.node.ReadState(func(s *statemachine.State) {
		for _, id := range s.Unread(args.UserID) {
			m, ok := s.Message(id)
			if !ok {
				continue
			}
			out = append(out, UnreadMessage{MessageID: m.ID, SenderID: m.SenderID, ReceiverID: m.ReceiverID})
		}
	})
	return GetUnreadMessagesReply{Count: uint32(len(out)), Messages: out}, nil
}

func (r *Router) GetMessageInformation(args GetMessageInformationArgs) (GetMessageInformationReply, *Error) {
	if err := r.authenticate(args.UserID, args.Token); err != nil {
		return GetMessageInformationReply{}, err
	}
	var (
		reply GetMessageInformationReply
		found bool
	)
	r.node.ReadState(func(s *statemachine.State) {
		m, ok := s.Message(args.MessageID)
		if !ok {
			return
		}
		found = true
		reply = GetMessageInformationReply{
			ReadFlag:      m.Read,
			SenderID:      m.SenderID,
			ContentLength: uint32(len(m.Content)),
			Content:       m.Content,
		}
	})
	if !found {
		return GetMessageInformationReply{}, internal("UnknownMessage")
	}
	return reply, nil
}

// GetUsernameByID and GetUserByUsername carry no session token in spec
// §6's table — they're treated as unauthenticated directory lookups, the
// way the teacher's read-only GET path never checks a session either.

func (r *Router) GetUsernameByID(args GetUsernameByIDArgs) (GetUsernameByIDReply, *Error) {
	var (
		username string
		found    bool
	)
	r.node.ReadState(func(s *statemachine.State) {
		u, ok := s.User(args.UserID)
		if ok {
			username, found = u.Username, true
		}
	})
	if !found {
		return GetUsernameByIDReply{}, internal("UnknownUser")
	}
	return GetUsernameByIDReply{Username: username}, nil
}

func (r *Router) GetUserByUsername(args GetUserByUsernameArgs) (GetUserByUsernameReply, *Error) {
	var (
		userID uint32
		found  bool
	)
	r.node.ReadState(func(s *statemachine.State) {
		id, ok := s.UserByUsername(args.Username)
		if ok {
			userID, found = id, true
		}
	})
	if !found {
		return GetUserByUsernameReply{Status: LookupNotFound}, nil
	}
	return GetUserByUsernameReply{Status: LookupFound, UserID: userID}, nil
}
