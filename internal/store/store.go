// Package store is the durable store of spec §4.3: Raft metadata, the
// append-only log, and the materialized user/message tables, on a single
// long-lived gorm connection per node (spec §9 "Per-operation database
// connections" -> one connection, transactional writes).
package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"raftchat/internal/raftstate"
	"raftchat/internal/statemachine"
)

// Store is the single-writer durable store for one node. All exported
// methods are safe to call from multiple goroutines; mu additionally
// serializes writers so "read committed, then decide, then write"
// sequences (append+truncate, upsert+delete) don't interleave.
type Store struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open creates or reopens the sqlite-backed store at path. Use ":memory:"
// for ephemeral/test stores.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying db handle: %w", err)
	}
	// Single-writer per node (spec §4.3): one connection avoids sqlite's
	// SQLITE_BUSY under concurrent writers instead of retrying around it.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&MetaRow{}, &LogRow{}, &UserRow{}, &MessageRow{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Raft metadata ---

const (
	MetaCurrentTerm = "current_term"
	MetaVotedFor    = "voted_for"
)

// PutMeta durably upserts a scalar. A successful return implies the value
// survives a crash, as required before a node may reply to a vote or
// term-adopting RPC.
func (s *Store) PutMeta(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Save(&MetaRow{Key: key, Value: value}).Error
}

// GetMeta returns the value for key, or ok=false if unset.
func (s *Store) GetMeta(key string) (value []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var row MetaRow
	result := s.db.First(&row, "key = ?", key)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, result.Error
	}
	return row.Value, true, nil
}

// --- Raft log ---

// AppendLog durably appends entries in order. Idempotent on retry of the
// same suffix since it always upserts by index.
func (s *Store) AppendLog(entries []raftstate.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			row := LogRow{Idx: e.Index, Term: e.Term, Command: e.Command}
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("append log entry %d: %w", e.Index, err)
			}
		}
		return nil
	})
}

// TruncateLog deletes every entry at or after fromIndex, per the
// AppendEntries conflict-resolution rule of spec §4.1.
func (s *Store) TruncateLog(fromIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Where("idx >= ?", fromIndex).Delete(&LogRow{}).Error
}

// ScanLog returns every log entry in ascending index order.
func (s *Store) ScanLog() ([]raftstate.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []LogRow
	if err := s.db.Order("idx asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]raftstate.LogEntry, len(rows))
	for i, r := range rows {
		out[i] = raftstate.LogEntry{Index: r.Idx, Term: r.Term, Command: r.Command}
	}
	return out, nil
}

// --- users ---

type userAux struct {
	Unread            []uint32
	RecentConversants []uint32
}

// UpsertUser durably writes a user row derived from statemachine.User.
func (s *Store) UpsertUser(u statemachine.User) error {
	blob, err := encodeAux(userAux{Unread: u.Unread, RecentConversants: u.RecentConversants})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row := UserRow{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash[:],
		DataBlob:     blob,
	}
	return s.db.Save(&row).Error
}

// DeleteUser removes a user row. Cascading message deletes are the
// caller's (statemachine's) responsibility, applied as their own
// DeleteMessage-shaped store writes.
func (s *Store) DeleteUser(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(&UserRow{}, "id = ?", id).Error
}

// ScanUsers returns every user row, order unspecified.
func (s *Store) ScanUsers() ([]statemachine.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []UserRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]statemachine.User, len(rows))
	for i, r := range rows {
		aux, err := decodeAux(r.DataBlob)
		if err != nil {
			return nil, fmt.Errorf("decode user %d aux data: %w", r.ID, err)
		}
		u := statemachine.User{
			ID:                r.ID,
			Username:          r.Username,
			Unread:            aux.Unread,
			RecentConversants: aux.RecentConversants,
		}
		copy(u.PasswordHash[:], r.PasswordHash)
		out[i] = u
	}
	return out, nil
}

// --- messages ---

// UpsertMessage durably writes a message row derived from statemachine.Message.
func (s *Store) UpsertMessage(m statemachine.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := MessageRow{
		ID:       m.ID,
		Sender:   m.SenderID,
		Receiver: m.ReceiverID,
		Content:  m.Content,
		Read:     m.Read,
		Ts:       m.Timestamp,
	}
	return s.db.Save(&row).Error
}

// DeleteMessage removes a message row.
func (s *Store) DeleteMessage(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(&MessageRow{}, "id = ?", id).Error
}

// ScanMessages returns every message row, order unspecified.
func (s *Store) ScanMessages() ([]statemachine.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []MessageRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]statemachine.Message, len(rows))
	for i, r := range rows {
		out[i] = statemachine.Message{
			ID:         r.ID,
			SenderID:   r.Sender,
			ReceiverID: r.Receiver,
			Content:    r.Content,
			Read:       r.Read,
			Timestamp:  r.Ts,
		}
	}
	return out, nil
}

func encodeAux(a userAux) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, fmt.Errorf("encode user aux data: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeAux(data []byte) (userAux, error) {
	if len(data) == 0 {
		return userAux{}, nil
	}
	var a userAux
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return userAux{}, err
	}
	return a, nil
}
