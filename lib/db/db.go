package db

import (
	"fmt"
	"io"

	"github.com/ValentinKolb/roc/lib/command"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplBTree Implementation = "btree"
	ImplMaple Implementation = "maple"
)

// ParseImplementation parses an engine name ("" means btree).
func ParseImplementation(s string) (Implementation, error) {
	switch Implementation(s) {
	case "", ImplBTree:
		return ImplBTree, nil
	case ImplMaple:
		return ImplMaple, nil
	default:
		return "", fmt.Errorf("unknown database engine %q (expected btree or maple)", s)
	}
}

// Compression selects how snapshots are encoded.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompression parses a compression name ("" means none).
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

type DatabaseInfo struct {
	Keys     int            `json:"keys"`
	Users    int            `json:"users"`
	WriteIdx uint64         `json:"write_idx"`
	DbType   Implementation `json:"db_type"`
	Metadata interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB is the ordered in-memory state of the store. Entries are keyed by (user id, key) and
// hold a uint64 value. Keys of different users never interfere.
//
// Implementations are not safe for concurrent use, the engine is the only caller.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or overwrites the entry (userID, key).
	// The writeIndex parameter is the log index of the mutation.
	Set(userID, key string, value uint64, writeIndex uint64)

	// Delete removes the entry (userID, key). Deleting an absent entry is a no-op.
	Delete(userID, key string, writeIndex uint64)

	// AddUser registers a user id. Returns false if it was already known.
	AddUser(userID string, writeIndex uint64) (added bool)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for (userID, key).
	Get(userID, key string) (value uint64, loaded bool)

	// Range returns the user's entries with start <= key <= end in ascending key order.
	// An empty slice is returned if start > end.
	Range(userID, start, end string) []command.Entry

	// List returns all entries of the user in ascending key order.
	List(userID string) []command.Entry

	// HasUser reports whether the user id has been registered.
	HasUser(userID string) bool

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database, including the write index.
	Save(w io.Writer) (err error)

	// Load replaces the database state with the data from the reader.
	Load(r io.Reader) (err error)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the index of the last applied mutation.
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}

// Apply applies a log record to the database. It is used for live writes and for replay.
// Writing a key registers its user, every stored key belongs to a known user.
func Apply(database KVDB, rec command.Record) error {
	switch rec.Type {
	case command.RecordTSet, command.RecordTUpdate:
		database.AddUser(rec.UserID, rec.Index)
		database.Set(rec.UserID, rec.Key, rec.Value, rec.Index)
	case command.RecordTDelete:
		database.Delete(rec.UserID, rec.Key, rec.Index)
	case command.RecordTRegisterUser:
		database.AddUser(rec.UserID, rec.Index)
	default:
		return command.ErrUnknownType
	}
	return nil
}
