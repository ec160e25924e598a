package store

import "raftchat/internal/statemachine"

// RestoreState rebuilds a statemachine.State from durable rows, the way
// spec §3 requires every in-memory index to be rebuilt from durable rows
// on startup: user rows first, then message rows, then the derived
// conversation index.
func (s *Store) RestoreState() (*statemachine.State, error) {
	state := statemachine.NewState()

	users, err := s.ScanUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		state.RestoreUser(u)
	}

	messages, err := s.ScanMessages()
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		state.RestoreMessage(m)
	}

	state.RebuildConversationIndex()
	return state, nil
}
