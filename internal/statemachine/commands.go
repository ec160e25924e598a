package statemachine

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Kind tags the closed set of command variants the state machine accepts.
// This replaces the source implementation's untyped dictionary commands
// (see spec §9 "Dynamic-typed command union -> tagged variants") with an
// explicit closed union: Decode rejects anything that isn't one of these.
type Kind uint8

const (
	KindCreateAccount Kind = iota
	KindDeleteAccount
	KindSendMessage
	KindMarkRead
	KindReadN
	KindDeleteMessage
)

// Command is a single Raft log entry payload. All nondeterministic
// inputs (assigned ids, tokens, timestamps) are captured by the leader
// before the entry is appended, so every replica decodes and applies the
// identical value.
type Command struct {
	Kind Kind

	CreateAccount *CreateAccountCmd `json:",omitempty"`
	DeleteAccount *DeleteAccountCmd `json:",omitempty"`
	SendMessage   *SendMessageCmd   `json:",omitempty"`
	MarkRead      *MarkReadCmd      `json:",omitempty"`
	ReadN         *ReadNCmd         `json:",omitempty"`
	DeleteMessage *DeleteMessageCmd `json:",omitempty"`
}

type CreateAccountCmd struct {
	Username       string
	PasswordHash   [32]byte
	AssignedUserID uint32
	Token          [32]byte
}

type DeleteAccountCmd struct {
	UserID uint32
}

type SendMessageCmd struct {
	SenderID          uint32
	RecipientID       uint32
	Content           string
	AssignedMessageID uint32
	Timestamp         int64
}

type MarkReadCmd struct {
	UserID    uint32
	MessageID uint32
}

// ReadNCmd pops up to N unread messages (ascending id order) and marks
// them read.
type ReadNCmd struct {
	UserID uint32
	N      uint32
}

type DeleteMessageCmd struct {
	MessageID uint32
}

func NewCreateAccount(c CreateAccountCmd) Command { return Command{Kind: KindCreateAccount, CreateAccount: &c} }
func NewDeleteAccount(c DeleteAccountCmd) Command { return Command{Kind: KindDeleteAccount, DeleteAccount: &c} }
func NewSendMessage(c SendMessageCmd) Command     { return Command{Kind: KindSendMessage, SendMessage: &c} }
func NewMarkRead(c MarkReadCmd) Command           { return Command{Kind: KindMarkRead, MarkRead: &c} }
func NewReadN(c ReadNCmd) Command                 { return Command{Kind: KindReadN, ReadN: &c} }
func NewDeleteMessage(c DeleteMessageCmd) Command { return Command{Kind: KindDeleteMessage, DeleteMessage: &c} }

// Encode serializes a command for storage in a raftstate.LogEntry. Every
// replica must decode this identically, so the encoding is a plain,
// version-free gob stream — sufficient because the log is never read by
// anything other than this binary's own Decode.
func Encode(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("statemachine: encode command: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode rejects anything that doesn't decode into one of the known
// variants, or whose Kind tag and populated field disagree.
func Decode(data []byte) (Command, error) {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("statemachine: decode command: %w", err)
	}
	if err := cmd.validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

func (c Command) validate() error {
	switch c.Kind {
	case KindCreateAccount:
		if c.CreateAccount == nil {
			return fmt.Errorf("statemachine: CreateAccount tag with nil payload")
		}
	case KindDeleteAccount:
		if c.DeleteAccount == nil {
			return fmt.Errorf("statemachine: DeleteAccount tag with nil payload")
		}
	case KindSendMessage:
		if c.SendMessage == nil {
			return fmt.Errorf("statemachine: SendMessage tag with nil payload")
		}
	case KindMarkRead:
		if c.MarkRead == nil {
			return fmt.Errorf("statemachine: MarkRead tag with nil payload")
		}
	case KindReadN:
		if c.ReadN == nil {
			return fmt.Errorf("statemachine: ReadN tag with nil payload")
		}
	case KindDeleteMessage:
		if c.DeleteMessage == nil {
			return fmt.Errorf("statemachine: DeleteMessage tag with nil payload")
		}
	default:
		return fmt.Errorf("statemachine: unknown command kind %d", c.Kind)
	}
	return nil
}
