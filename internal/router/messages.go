package router

// The request/reply shapes below mirror spec §6's Application RPC table
// field-for-field; internal/rpcapi's net/rpc services carry these types
// verbatim over the wire.

type CreateAccountArgs struct {
	Username     string
	PasswordHash [32]byte
}

type CreateAccountReply struct {
	SessionToken [32]byte
}

type LoginArgs struct {
	Username     string
	PasswordHash [32]byte
}

type LoginStatus int

const (
	LoginSuccess LoginStatus = iota
	LoginFailure
)

type LoginReply struct {
	Status       LoginStatus
	SessionToken [32]byte
	UnreadCount  uint32
}

type ListAccountsArgs struct {
	UserID   uint32
	Token    [32]byte
	Wildcard string
}

type ListAccountsReply struct {
	Count     uint32
	Usernames []string
}

type DisplayConversationArgs struct {
	UserID       uint32
	Token        [32]byte
	ConversantID uint32
}

type ConversationMessage struct {
	MessageID  uint32
	SenderFlag bool
	Content    string
}

type DisplayConversationReply struct {
	Count    uint32
	Messages []ConversationMessage
}

type SendMessageArgs struct {
	SenderID    uint32
	Token       [32]byte
	RecipientID uint32
	Content     string
}

type SendMessageReply struct{}

type ReadMessagesArgs struct {
	UserID uint32
	Token  [32]byte
	N      uint32
}

type ReadMessagesReply struct{}

type DeleteMessageArgs struct {
	UserID    uint32
	MessageID uint32
	Token     [32]byte
}

type DeleteMessageReply struct{}

type DeleteAccountArgs struct {
	UserID uint32
	Token  [32]byte
}

type DeleteAccountReply struct{}

type GetUnreadMessagesArgs struct {
	UserID uint32
	Token  [32]byte
}

type UnreadMessage struct {
	MessageID  uint32
	SenderID   uint32
	ReceiverID uint32
}

type GetUnreadMessagesReply struct {
	Count    uint32
	Messages []UnreadMessage
}

type GetMessageInformationArgs struct {
	UserID    uint32
	Token     [32]byte
	MessageID uint32
}

type GetMessageInformationReply struct {
	ReadFlag      bool
	SenderID      uint32
	ContentLength uint32
	Content       string
}

type GetUsernameByIDArgs struct {
	UserID uint32
}

type GetUsernameByIDReply struct {
	Username string
}

type MarkMessageAsReadArgs struct {
	UserID    uint32
	Token     [32]byte
	MessageID uint32
}

type MarkMessageAsReadReply struct{}

type GetUserByUsernameArgs struct {
	Username string
}

type LookupStatus int

const (
	LookupFound LookupStatus = iota
	LookupNotFound
)

type GetUserByUsernameReply struct {
	Status LookupStatus
	UserID uint32
}
