package store

// Row types persisted by gorm, in the model-tagging style of
// ekaadwar-chat-app-be's chat schema, adapted to ids assigned by the
// Raft leader rather than auto-incremented by the database.

// MetaRow holds a single Raft persistent scalar (current_term, voted_for).
type MetaRow struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value []byte `gorm:"column:value"`
}

func (MetaRow) TableName() string { return "raft_meta" }

// LogRow is one durable Raft log entry.
type LogRow struct {
	Idx     uint64 `gorm:"primaryKey;column:idx"`
	Term    uint64 `gorm:"column:term"`
	Command []byte `gorm:"column:command"`
}

func (LogRow) TableName() string { return "log_entries" }

// UserRow is a materialized statemachine.User. DataBlob is the
// gob-encoded Unread/RecentConversants sequences — spec §6 calls a
// users(id, username, password_hash, data_blob) shape sufficient.
type UserRow struct {
	ID           uint32 `gorm:"primaryKey;column:id"`
	Username     string `gorm:"column:username;uniqueIndex"`
	PasswordHash []byte `gorm:"column:password_hash"`
	DataBlob     []byte `gorm:"column:data_blob"`
}

func (UserRow) TableName() string { return "users" }

// MessageRow is a materialized statemachine.Message.
type MessageRow struct {
	ID       uint32 `gorm:"primaryKey;column:id"`
	Sender   uint32 `gorm:"column:sender;index"`
	Receiver uint32 `gorm:"column:receiver;index"`
	Content  string `gorm:"column:content"`
	Read     bool   `gorm:"column:read"`
	Ts       int64  `gorm:"column:ts"`
}

func (MessageRow) TableName() string { return "messages" }
