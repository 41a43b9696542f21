package btree

import (
	"io"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/db"
	gbtree "github.com/google/btree"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultDegree = 32 // Degree of the underlying btree
)

// --------------------------------------------------------------------------
// Core BTree database structure
// --------------------------------------------------------------------------

// item is a single entry of the tree, ordered by (UserID, Key)
type item struct {
	UserID string
	Key    string
	Value  uint64
}

func lessItem(a, b item) bool {
	if a.UserID != b.UserID {
		return a.UserID < b.UserID
	}
	return a.Key < b.Key
}

// btreeImpl keeps all entries of all users in a single ordered tree
type btreeImpl struct {
	degree      int
	compression db.Compression
	tree        *gbtree.BTreeG[item]
	users       map[string]struct{}
	currIndex   uint64
}

// DBOptions configures the btreeImpl behavior during initialization
type DBOptions struct {
	Degree      int            // Degree of the btree (0 = use default)
	Compression db.Compression // Compression used by Save
}

// DefaultOptions returns the default btreeImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		Degree:      defaultDegree,
		Compression: db.CompressionNone,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewBTreeDB creates a new ordered in-memory database with the specified options (optional)
func NewBTreeDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	degree := opts.Degree
	if degree < 2 {
		degree = defaultDegree
	}

	return &btreeImpl{
		degree:      degree,
		compression: opts.Compression,
		tree:        gbtree.NewG[item](degree, lessItem),
		users:       make(map[string]struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods - Write Operations (docu see db.KVDB)
// --------------------------------------------------------------------------

func (b *btreeImpl) Set(userID, key string, value uint64, writeIndex uint64) {
	b.tree.ReplaceOrInsert(item{UserID: userID, Key: key, Value: value})
	b.SetWriteIdx(writeIndex)
}

func (b *btreeImpl) Delete(userID, key string, writeIndex uint64) {
	b.tree.Delete(item{UserID: userID, Key: key})
	b.SetWriteIdx(writeIndex)
}

func (b *btreeImpl) AddUser(userID string, writeIndex uint64) bool {
	b.SetWriteIdx(writeIndex)
	if _, ok := b.users[userID]; ok {
		return false
	}
	b.users[userID] = struct{}{}
	return true
}

// --------------------------------------------------------------------------
// Interface Methods - Query Operations (docu see db.KVDB)
// --------------------------------------------------------------------------

func (b *btreeImpl) Get(userID, key string) (uint64, bool) {
	it, ok := b.tree.Get(item{UserID: userID, Key: key})
	return it.Value, ok
}

func (b *btreeImpl) Range(userID, start, end string) []command.Entry {
	entries := make([]command.Entry, 0)
	if start > end {
		return entries
	}
	b.tree.AscendGreaterOrEqual(item{UserID: userID, Key: start}, func(it item) bool {
		if it.UserID != userID || it.Key > end {
			return false
		}
		entries = append(entries, command.Entry{UserID: it.UserID, Key: it.Key, Value: it.Value})
		return true
	})
	return entries
}

func (b *btreeImpl) List(userID string) []command.Entry {
	entries := make([]command.Entry, 0)
	// the empty key is the smallest key of a user
	b.tree.AscendGreaterOrEqual(item{UserID: userID}, func(it item) bool {
		if it.UserID != userID {
			return false
		}
		entries = append(entries, command.Entry{UserID: it.UserID, Key: it.Key, Value: it.Value})
		return true
	})
	return entries
}

func (b *btreeImpl) HasUser(userID string) bool {
	_, ok := b.users[userID]
	return ok
}

// --------------------------------------------------------------------------
// Interface Methods - Write Index (docu see db.KVDB)
// --------------------------------------------------------------------------

func (b *btreeImpl) SetWriteIdx(index uint64) {
	if index > b.currIndex {
		b.currIndex = index
	}
}

func (b *btreeImpl) WriteIdx() uint64 {
	return b.currIndex
}

// --------------------------------------------------------------------------
// Interface Methods - Info (docu see db.KVDB)
// --------------------------------------------------------------------------

func (b *btreeImpl) GetInfo() db.DatabaseInfo {
	return db.DatabaseInfo{
		Keys:     b.tree.Len(),
		Users:    len(b.users),
		WriteIdx: b.currIndex,
		DbType:   db.ImplBTree,
		Metadata: map[string]interface{}{
			"degree":      b.degree,
			"compression": b.compression.String(),
		},
	}
}

func (b *btreeImpl) Close() error {
	b.tree.Clear(false)
	b.users = make(map[string]struct{})
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods - Persistence (docu see db.KVDB)
// --------------------------------------------------------------------------

func (b *btreeImpl) Save(w io.Writer) error {
	return db.EncodeSnapshot(w, b.compression, db.SnapshotState{
		WriteIdx:  b.currIndex,
		UserCount: len(b.users),
		Users: func(yield func(string) bool) {
			for userID := range b.users {
				if !yield(userID) {
					return
				}
			}
		},
		EntryCount: b.tree.Len(),
		// entries are written in key order, Load inserts them in ascending order
		Entries: func(yield func(command.Entry) bool) {
			b.tree.Ascend(func(it item) bool {
				return yield(command.Entry{UserID: it.UserID, Key: it.Key, Value: it.Value})
			})
		},
	})
}

// Load restores a database from the reader. On error the current state is left unchanged.
func (b *btreeImpl) Load(r io.Reader) error {
	tree := gbtree.NewG[item](b.degree, lessItem)
	users := make(map[string]struct{})

	writeIdx, err := db.DecodeSnapshot(r,
		func(userID string) { users[userID] = struct{}{} },
		func(e command.Entry) { tree.ReplaceOrInsert(item{UserID: e.UserID, Key: e.Key, Value: e.Value}) },
	)
	if err != nil {
		return err
	}

	b.tree = tree
	b.users = users
	b.currIndex = writeIdx
	return nil
}
