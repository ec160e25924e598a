// Package rpcapi exposes internal/router's thirteen application RPCs over
// net/rpc (see SPEC_FULL.md §6), the same way internal/raftnode/service.go
// adapts the peer RPCs: one method per RPC, matching net/rpc's
// func(argType, *replyType) error calling convention, delegating straight
// into the router and flattening its *router.Error into a plain error
// (net/rpc has no structured-error channel — the client parses the
// leading "CODE: " token off Error() to recover the code, the accepted
// limitation of using net/rpc as the stand-in transport; see DESIGN.md).
package rpcapi

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"raftchat/internal/router"
)

// ServiceName is the net/rpc service name this type registers under.
const ServiceName = "ClientService"

type ClientService struct {
	Router *router.Router
	Log    *logrus.Entry
}

func asError(err *router.Error) error {
	if err == nil {
		return nil
	}
	return err
}

// requestLog stamps a correlation id on one inbound call, the way the
// oba LDAP server tags each search/bind with a request id before
// logging it — here there's no per-connection logger upstream of
// net/rpc's dispatch, so each method mints its own.
func (s *ClientService) requestLog(rpc string) *logrus.Entry {
	if s.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return s.Log.WithFields(logrus.Fields{"rpc": rpc, "request_id": uuid.New().String()})
}

func (s *ClientService) CreateAccount(args router.CreateAccountArgs, reply *router.CreateAccountReply) error {
	log := s.requestLog("CreateAccount")
	r, err := s.Router.CreateAccount(args)
	if err != nil {
		log.WithError(err).Debug("rpcapi: request failed")
	}
	*reply = r
	return asError(err)
}

func (s *ClientService) Login(args router.LoginArgs, reply *router.LoginReply) error {
	log := s.requestLog("Login")
	r, err := s.Router.Login(args)
	if err != nil {
		log.WithError(err).Debug("rpcapi: request failed")
	}
	*reply = r
	return asError(err)
}

func (s *ClientService) ListAccounts(args router.ListAccountsArgs, reply *router.ListAccountsReply) error {
	r, err := s.Router.ListAccounts(args)
	*reply = r
	return asError(err)
}

func (s *ClientService) DisplayConversation(args router.DisplayConversationArgs, reply *router.DisplayConversationReply) error {
	r, err := s.Router.DisplayConversation(args)
	*reply = r
	return asError(err)
}

func (s *ClientService) SendMessage(args router.SendMessageArgs, reply *router.SendMessageReply) error {
	r, err := s.Router.SendMessage(args)
	*reply = r
	return asError(err)
}

func (s *ClientService) ReadMessages(args router.ReadMessagesArgs, reply *router.ReadMessagesReply) error {
	r, err := s.Router.ReadMessages(args)
	*reply = r
	return asError(err)
}

func (s *ClientService) DeleteMessage(args router.DeleteMessageArgs, reply *router.DeleteMessageReply) error {
	r, err := s.Router.DeleteMessage(args)
	*reply = r
	return asError(err)
}

func (s *ClientService) DeleteAccount(args router.DeleteAccountArgs, reply *router.DeleteAccountReply) error {
	log := s.requestLog("DeleteAccount")
	r, err := s.Router.DeleteAccount(args)
	if err != nil {
		log.WithError(err).Debug("rpcapi: request failed")
	}
	*reply = r
	return asError(err)
}

func (s *ClientService) GetUnreadMessages(args router.GetUnreadMessagesArgs, reply *router.GetUnreadMessagesReply) error {
	r, err := s.Router.GetUnreadMessages(args)
	*reply = r
	return asError(err)
}

func (s *ClientService) GetMessageInformation(args router.GetMessageInformationArgs, reply *router.GetMessageInformationReply) error {
	r, err := s.Router.GetMessageInformation(args)
	*reply = r
	return asError(err)
}

func (s *ClientService) GetUsernameByID(args router.GetUsernameByIDArgs, reply *router.GetUsernameByIDReply) error {
	r, err := s.Router.GetUsernameByID(args)
	*reply = r
	return asError(err)
}

func (s *ClientService) MarkMessageAsRead(args router.MarkMessageAsReadArgs, reply *router.MarkMessageAsReadReply) error {
	r, err := s.Router.MarkMessageAsRead(args)
	*reply = r
	return asError(err)
}

func (s *ClientService) GetUserByUsername(args router.GetUserByUsernameArgs, reply *router.GetUserByUsernameReply) error {
	r, err := s.Router.GetUserByUsername(args)
	*reply = r
	return asError(err)
}
