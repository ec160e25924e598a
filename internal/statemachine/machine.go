// Package statemachine implements the deterministic user/message state
// machine committed Raft log entries are applied against. Apply never
// reads the wall clock, never uses randomness, and never depends on map
// iteration order for anything it returns — every nondeterministic input
// (assigned ids, tokens, timestamps) already lives inside the Command.
package statemachine

import "sort"

// User mirrors spec §3: unique stable id, unique case-sensitive username,
// an immutable password digest, an ascending ordered unread set and a
// deduplicated most-recent-first conversant list.
type User struct {
	ID                uint32
	Username          string
	PasswordHash      [32]byte
	Unread            []uint32 // ascending by message id
	RecentConversants []uint32 // most-recent-first, deduplicated
}

// Message mirrors spec §3.
type Message struct {
	ID         uint32
	SenderID   uint32
	ReceiverID uint32
	Content    string
	Read       bool
	Timestamp  int64
}

// conversationKey canonicalizes an unordered user pair.
type conversationKey struct{ Lo, Hi uint32 }

func pairKey(a, b uint32) conversationKey {
	if a < b {
		return conversationKey{a, b}
	}
	return conversationKey{b, a}
}

// State holds every table and derived index the state machine needs.
// Zero value is a valid, empty state.
type State struct {
	users        map[uint32]*User
	usersByName  map[string]uint32
	messages     map[uint32]*Message
	conversation map[conversationKey][]uint32 // ascending by message id
}

// NewState returns an empty, ready-to-use State.
func NewState() *State {
	return &State{
		users:        make(map[uint32]*User),
		usersByName:  make(map[string]uint32),
		messages:     make(map[uint32]*Message),
		conversation: make(map[conversationKey][]uint32),
	}
}

// Reply carries a command's committed outcome back to the router. Exactly
// one of the typed fields is meaningful, selected by the field the
// command variant defines.
type Reply struct {
	Rejected bool
	Reason   string

	CreateAccount struct {
		UserID uint32
		Token  [32]byte
	}
	ReadN struct {
		Count      uint32
		MessageIDs []uint32
	}
	DeleteAccount struct {
		DeletedMessageIDs []uint32 // messages removed by the cascade
		TouchedUserIDs    []uint32 // other users whose Unread/RecentConversants changed
	}
}

func reject(reason string) Reply {
	return Reply{Rejected: true, Reason: reason}
}

// Apply advances the state machine by exactly one command, in place, and
// returns the reply committed alongside it. Because every replica applies
// the same command in the same log order, s converges identically across
// the cluster regardless of which node did the mutating.
func (s *State) Apply(cmd Command) Reply {
	switch cmd.Kind {
	case KindCreateAccount:
		return s.applyCreateAccount(*cmd.CreateAccount)
	case KindDeleteAccount:
		return s.applyDeleteAccount(*cmd.DeleteAccount)
	case KindSendMessage:
		return s.applySendMessage(*cmd.SendMessage)
	case KindMarkRead:
		return s.applyMarkRead(*cmd.MarkRead)
	case KindReadN:
		return s.applyReadN(*cmd.ReadN)
	case KindDeleteMessage:
		return s.applyDeleteMessage(*cmd.DeleteMessage)
	default:
		return reject("unknown command")
	}
}

func (s *State) applyCreateAccount(c CreateAccountCmd) Reply {
	if _, taken := s.usersByName[c.Username]; taken {
		return reject("UsernameTaken")
	}
	s.users[c.AssignedUserID] = &User{
		ID:           c.AssignedUserID,
		Username:     c.Username,
		PasswordHash: c.PasswordHash,
	}
	s.usersByName[c.Username] = c.AssignedUserID
	var reply Reply
	reply.CreateAccount.UserID = c.AssignedUserID
	reply.CreateAccount.Token = c.Token
	return reply
}

func (s *State) applyDeleteAccount(c DeleteAccountCmd) Reply {
	user, ok := s.users[c.UserID]
	if !ok {
		return reject("UnknownUser")
	}

	touched := make(map[uint32]struct{})
	var deletedMessages []uint32

	for msgID, msg := range s.messages {
		if msg.SenderID != c.UserID && msg.ReceiverID != c.UserID {
			continue
		}
		other := msg.SenderID
		if other == c.UserID {
			other = msg.ReceiverID
		}
		delete(s.conversation, pairKey(msg.SenderID, msg.ReceiverID))
		if otherUser, ok := s.users[other]; ok {
			otherUser.Unread = removeUint32(otherUser.Unread, msgID)
			touched[other] = struct{}{}
		}
		delete(s.messages, msgID)
		deletedMessages = append(deletedMessages, msgID)
	}

	for _, other := range s.users {
		if other.ID == c.UserID {
			continue
		}
		before := len(other.RecentConversants)
		other.RecentConversants = removeUint32(other.RecentConversants, c.UserID)
		if len(other.RecentConversants) != before {
			touched[other.ID] = struct{}{}
		}
	}

	delete(s.usersByName, user.Username)
	delete(s.users, c.UserID)

	sort.Slice(deletedMessages, func(i, j int) bool { return deletedMessages[i] < deletedMessages[j] })
	touchedIDs := make([]uint32, 0, len(touched))
	for id := range touched {
		touchedIDs = append(touchedIDs, id)
	}
	sort.Slice(touchedIDs, func(i, j int) bool { return touchedIDs[i] < touchedIDs[j] })

	var reply Reply
	reply.DeleteAccount.DeletedMessageIDs = deletedMessages
	reply.DeleteAccount.TouchedUserIDs = touchedIDs
	return reply
}

func (s *State) applySendMessage(c SendMessageCmd) Reply {
	sender, ok := s.users[c.SenderID]
	if !ok {
		return reject("UnknownSender")
	}
	recipient, ok := s.users[c.RecipientID]
	if !ok {
		return reject("UnknownRecipient")
	}

	msg := &Message{
		ID:         c.AssignedMessageID,
		SenderID:   c.SenderID,
		ReceiverID: c.RecipientID,
		Content:    c.Content,
		Read:       false,
		Timestamp:  c.Timestamp,
	}
	s.messages[msg.ID] = msg

	key := pairKey(c.SenderID, c.RecipientID)
	s.conversation[key] = append(s.conversation[key], msg.ID)

	recipient.Unread = append(recipient.Unread, msg.ID)

	sender.RecentConversants = moveToFront(sender.RecentConversants, c.RecipientID)
	recipient.RecentConversants = moveToFront(recipient.RecentConversants, c.SenderID)

	return Reply{}
}

func (s *State) applyMarkRead(c MarkReadCmd) Reply {
	msg, ok := s.messages[c.MessageID]
	if !ok {
		return reject("UnknownMessage")
	}
	if msg.ReceiverID != c.UserID {
		return reject("NotRecipient")
	}
	msg.Read = true
	if user, ok := s.users[c.UserID]; ok {
		user.Unread = removeUint32(user.Unread, c.MessageID)
	}
	return Reply{}
}

func (s *State) applyReadN(c ReadNCmd) Reply {
	user, ok := s.users[c.UserID]
	if !ok {
		return reject("UnknownUser")
	}

	n := int(c.N)
	if n > len(user.Unread) {
		n = len(user.Unread)
	}
	toMark := append([]uint32(nil), user.Unread[:n]...)
	user.Unread = user.Unread[n:]
	for _, id := range toMark {
		if msg, ok := s.messages[id]; ok {
			msg.Read = true
		}
	}

	var reply Reply
	reply.ReadN.Count = uint32(len(toMark))
	reply.ReadN.MessageIDs = toMark
	return reply
}

func (s *State) applyDeleteMessage(c DeleteMessageCmd) Reply {
	msg, ok := s.messages[c.MessageID]
	if !ok {
		return reject("UnknownMessage")
	}
	key := pairKey(msg.SenderID, msg.ReceiverID)
	s.conversation[key] = removeUint32(s.conversation[key], msg.ID)
	if len(s.conversation[key]) == 0 {
		delete(s.conversation, key)
	}
	if recipient, ok := s.users[msg.ReceiverID]; ok {
		recipient.Unread = removeUint32(recipient.Unread, msg.ID)
	}
	delete(s.messages, msg.ID)
	return Reply{}
}

// --- read-only queries, served locally from applied state ---

// User returns a copy of the user by id.
func (s *State) User(id uint32) (User, bool) {
	u, ok := s.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// UserByUsername resolves a username to a user id.
func (s *State) UserByUsername(username string) (uint32, bool) {
	id, ok := s.usersByName[username]
	return id, ok
}

// Message returns a copy of the message by id.
func (s *State) Message(id uint32) (Message, bool) {
	m, ok := s.messages[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Conversation returns the message ids between a and b, ascending by id.
func (s *State) Conversation(a, b uint32) []uint32 {
	ids := s.conversation[pairKey(a, b)]
	out := make([]uint32, len(ids))
	copy(out, ids)
	return out
}

// Unread returns a copy of the user's unread set, ascending by id.
func (s *State) Unread(userID uint32) []uint32 {
	user, ok := s.users[userID]
	if !ok {
		return nil
	}
	out := make([]uint32, len(user.Unread))
	copy(out, user.Unread)
	return out
}

// ListUsernames returns usernames matching the glob wildcard (see
// wildcard.go), ordered by user id for a stable per-replica order.
func (s *State) ListUsernames(pattern string) []string {
	type entry struct {
		id   uint32
		name string
	}
	var matches []entry
	for id, u := range s.users {
		if MatchWildcard(pattern, u.Username) {
			matches = append(matches, entry{id, u.Username})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].id < matches[j].id })
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.name
	}
	return names
}

// RestoreUser inserts a user row read back from the durable store,
// bypassing the CreateAccount preconditions since the row already
// represents committed state.
func (s *State) RestoreUser(u User) {
	cp := u
	s.users[cp.ID] = &cp
	s.usersByName[cp.Username] = cp.ID
}

// RestoreMessage inserts a message row read back from the durable store.
// Call RebuildConversationIndex once every row has been restored.
func (s *State) RestoreMessage(m Message) {
	cp := m
	s.messages[cp.ID] = &cp
}

// RebuildConversationIndex derives the conversation index from the
// currently loaded messages, ascending by message id, per spec §3
// ("Derived; rebuilt from Message rows on startup").
func (s *State) RebuildConversationIndex() {
	ids := make([]uint32, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	s.conversation = make(map[conversationKey][]uint32)
	for _, id := range ids {
		msg := s.messages[id]
		key := pairKey(msg.SenderID, msg.ReceiverID)
		s.conversation[key] = append(s.conversation[key], id)
	}
}

// MaxUserID returns the highest assigned user id currently live, or 0.
func (s *State) MaxUserID() uint32 {
	var max uint32
	for id := range s.users {
		if id > max {
			max = id
		}
	}
	return max
}

// MaxMessageID returns the highest assigned message id currently live, or 0.
func (s *State) MaxMessageID() uint32 {
	var max uint32
	for id := range s.messages {
		if id > max {
			max = id
		}
	}
	return max
}

func removeUint32(s []uint32, v uint32) []uint32 {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func moveToFront(s []uint32, v uint32) []uint32 {
	s = removeUint32(s, v)
	return append([]uint32{v}, s...)
}
