package maple

import (
	"io"
	"slices"
	"sort"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/db"
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// table holds the entries of one user. The sorted key list is rebuilt lazily when a
// Range or List needs it after keys were added or removed.
type table struct {
	values map[string]uint64
	sorted []string
	dirty  bool
}

func newTable() *table {
	return &table{values: make(map[string]uint64)}
}

// keys returns the user's keys in ascending order
func (t *table) keys() []string {
	if t.dirty {
		t.sorted = t.sorted[:0]
		for k := range t.values {
			t.sorted = append(t.sorted, k)
		}
		slices.Sort(t.sorted)
		t.dirty = false
	}
	return t.sorted
}

// mapleImpl keeps one hash table per user. Point operations are O(1), ordered scans
// sort the user's keys once after every change of the key set.
type mapleImpl struct {
	compression db.Compression
	tables      map[string]*table
	users       map[string]struct{}
	keys        int
	currIndex   uint64
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	Compression db.Compression // Compression used by Save
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		Compression: db.CompressionNone,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new hash based in-memory database with the specified options (optional)
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &mapleImpl{
		compression: opts.Compression,
		tables:      make(map[string]*table),
		users:       make(map[string]struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods - Write Operations (docu see db.KVDB)
// --------------------------------------------------------------------------

func (m *mapleImpl) Set(userID, key string, value uint64, writeIndex uint64) {
	m.set(userID, key, value)
	m.SetWriteIdx(writeIndex)
}

func (m *mapleImpl) set(userID, key string, value uint64) {
	t, ok := m.tables[userID]
	if !ok {
		t = newTable()
		m.tables[userID] = t
	}
	if _, exists := t.values[key]; !exists {
		t.dirty = true
		m.keys++
	}
	t.values[key] = value
}

func (m *mapleImpl) Delete(userID, key string, writeIndex uint64) {
	m.SetWriteIdx(writeIndex)
	t, ok := m.tables[userID]
	if !ok {
		return
	}
	if _, exists := t.values[key]; !exists {
		return
	}
	delete(t.values, key)
	m.keys--
	if len(t.values) == 0 {
		delete(m.tables, userID)
		return
	}
	t.dirty = true
}

func (m *mapleImpl) AddUser(userID string, writeIndex uint64) bool {
	m.SetWriteIdx(writeIndex)
	if _, ok := m.users[userID]; ok {
		return false
	}
	m.users[userID] = struct{}{}
	return true
}

// --------------------------------------------------------------------------
// Interface Methods - Query Operations (docu see db.KVDB)
// --------------------------------------------------------------------------

func (m *mapleImpl) Get(userID, key string) (uint64, bool) {
	t, ok := m.tables[userID]
	if !ok {
		return 0, false
	}
	v, ok := t.values[key]
	return v, ok
}

func (m *mapleImpl) Range(userID, start, end string) []command.Entry {
	entries := make([]command.Entry, 0)
	t, ok := m.tables[userID]
	if !ok || start > end {
		return entries
	}
	keys := t.keys()
	for i := sort.SearchStrings(keys, start); i < len(keys) && keys[i] <= end; i++ {
		entries = append(entries, command.Entry{UserID: userID, Key: keys[i], Value: t.values[keys[i]]})
	}
	return entries
}

func (m *mapleImpl) List(userID string) []command.Entry {
	t, ok := m.tables[userID]
	if !ok {
		return make([]command.Entry, 0)
	}
	keys := t.keys()
	entries := make([]command.Entry, len(keys))
	for i, k := range keys {
		entries[i] = command.Entry{UserID: userID, Key: k, Value: t.values[k]}
	}
	return entries
}

func (m *mapleImpl) HasUser(userID string) bool {
	_, ok := m.users[userID]
	return ok
}

// --------------------------------------------------------------------------
// Interface Methods - Write Index (docu see db.KVDB)
// --------------------------------------------------------------------------

func (m *mapleImpl) SetWriteIdx(index uint64) {
	if index > m.currIndex {
		m.currIndex = index
	}
}

func (m *mapleImpl) WriteIdx() uint64 {
	return m.currIndex
}

// --------------------------------------------------------------------------
// Interface Methods - Info (docu see db.KVDB)
// --------------------------------------------------------------------------

func (m *mapleImpl) GetInfo() db.DatabaseInfo {
	return db.DatabaseInfo{
		Keys:     m.keys,
		Users:    len(m.users),
		WriteIdx: m.currIndex,
		DbType:   db.ImplMaple,
		Metadata: map[string]interface{}{
			"tables":      len(m.tables),
			"compression": m.compression.String(),
		},
	}
}

func (m *mapleImpl) Close() error {
	m.tables = make(map[string]*table)
	m.users = make(map[string]struct{})
	m.keys = 0
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods - Persistence (docu see db.KVDB)
// --------------------------------------------------------------------------

func (m *mapleImpl) Save(w io.Writer) error {
	return db.EncodeSnapshot(w, m.compression, db.SnapshotState{
		WriteIdx:  m.currIndex,
		UserCount: len(m.users),
		Users: func(yield func(string) bool) {
			for userID := range m.users {
				if !yield(userID) {
					return
				}
			}
		},
		EntryCount: m.keys,
		Entries: func(yield func(command.Entry) bool) {
			for userID, t := range m.tables {
				for k, v := range t.values {
					if !yield(command.Entry{UserID: userID, Key: k, Value: v}) {
						return
					}
				}
			}
		},
	})
}

// Load restores a database from the reader. On error the current state is left unchanged.
func (m *mapleImpl) Load(r io.Reader) error {
	loaded := &mapleImpl{
		compression: m.compression,
		tables:      make(map[string]*table),
		users:       make(map[string]struct{}),
	}

	writeIdx, err := db.DecodeSnapshot(r,
		func(userID string) { loaded.users[userID] = struct{}{} },
		func(e command.Entry) { loaded.set(e.UserID, e.Key, e.Value) },
	)
	if err != nil {
		return err
	}

	m.tables = loaded.tables
	m.users = loaded.users
	m.keys = loaded.keys
	m.currIndex = writeIdx
	return nil
}
