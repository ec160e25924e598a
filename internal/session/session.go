// Package session is the in-memory, non-replicated session table of
// spec §4 item 6 / §9: user id -> opaque 32-byte token, minted locally by
// whichever node handles Login or CreateAccount. The table itself is
// never replicated: a CreateAccount token travels inside its log entry,
// but only the node that handled the call installs it here, and Login
// tokens never enter the log. Sessions do not follow a leader change; the
// client is expected to treat UNAUTHENTICATED after failover as a cue to
// re-authenticate (spec §9).
package session

import (
	"crypto/rand"
	"fmt"
	"sync"
)

// Token is the opaque 32-byte session credential.
type Token [32]byte

// NewToken generates a cryptographically random token. Token generation
// has no idiomatic third-party replacement in the pack; crypto/rand is
// the stdlib primitive the spec itself treats password hashing the same
// way (an opaque external concern), so no ecosystem dependency is
// dropped by using it here — see DESIGN.md.
func NewToken() (Token, error) {
	var t Token
	if _, err := rand.Read(t[:]); err != nil {
		return Token{}, fmt.Errorf("session: generate token: %w", err)
	}
	return t, nil
}

// Table maps user id -> active session token. One Table per node.
type Table struct {
	mu     sync.RWMutex
	byUser map[uint32]Token
}

func NewTable() *Table {
	return &Table{byUser: make(map[uint32]Token)}
}

// Put installs a freshly minted session for userID, replacing any
// previous one (a second login invalidates the first session).
func (t *Table) Put(userID uint32, token Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byUser[userID] = token
}

// Validate reports whether token is the current session for userID.
func (t *Table) Validate(userID uint32, token Token) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	current, ok := t.byUser[userID]
	return ok && current == token
}

// Drop removes any session for userID, called on DeleteAccount.
func (t *Table) Drop(userID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byUser, userID)
}
