package testing

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Range", func(t *testing.T) {
			testRange(t, factory())
		})

		t.Run("List", func(t *testing.T) {
			testList(t, factory())
		})

		t.Run("UserIsolation", func(t *testing.T) {
			testUserIsolation(t, factory())
		})

		t.Run("Users", func(t *testing.T) {
			testUsers(t, factory())
		})

		t.Run("WriteIdx", func(t *testing.T) {
			testWriteIdx(t, factory())
		})

		t.Run("Apply", func(t *testing.T) {
			testApply(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("SnapshotFile", func(t *testing.T) {
			testSnapshotFile(t, factory)
		})

		t.Run("LoadInvalid", func(t *testing.T) {
			testLoadInvalid(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func requireEntries(t *testing.T, got []command.Entry, want ...command.Entry) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries %v, got %d entries %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func entry(user, key string, value uint64) command.Entry {
	return command.Entry{UserID: user, Key: key, Value: value}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	if _, ok := database.Get("u", "missing"); ok {
		t.Error("Expected missing key to be absent")
	}

	database.Set("u", "a", 1, 1)
	if v, ok := database.Get("u", "a"); !ok || v != 1 {
		t.Errorf("Expected (1, true), got (%d, %t)", v, ok)
	}

	// overwrite
	database.Set("u", "a", 2, 2)
	if v, ok := database.Get("u", "a"); !ok || v != 2 {
		t.Errorf("Expected (2, true) after overwrite, got (%d, %t)", v, ok)
	}

	// zero and max are regular values
	database.Set("u", "zero", 0, 3)
	database.Set("u", "max", ^uint64(0), 4)
	if v, ok := database.Get("u", "zero"); !ok || v != 0 {
		t.Errorf("Expected (0, true), got (%d, %t)", v, ok)
	}
	if v, ok := database.Get("u", "max"); !ok || v != ^uint64(0) {
		t.Errorf("Expected max uint64, got (%d, %t)", v, ok)
	}

	// empty key is a regular key
	database.Set("u", "", 5, 5)
	if v, ok := database.Get("u", ""); !ok || v != 5 {
		t.Errorf("Expected (5, true) for empty key, got (%d, %t)", v, ok)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.Set("u", "a", 1, 1)
	database.Delete("u", "a", 2)
	if _, ok := database.Get("u", "a"); ok {
		t.Error("Expected key to be deleted")
	}

	// deleting an absent key is a no-op
	database.Delete("u", "never-set", 3)
	if got := database.List("u"); len(got) != 0 {
		t.Errorf("Expected empty list, got %v", got)
	}
}

func testRange(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.Set("alice", "a", 1, 1)
	database.Set("alice", "b", 2, 2)
	database.Set("alice", "c", 3, 3)
	database.Set("alice", "d", 4, 4)
	database.Set("bob", "b", 20, 5)

	tests := []struct {
		name       string
		start, end string
		want       []command.Entry
	}{
		{"inclusive bounds", "b", "c", []command.Entry{entry("alice", "b", 2), entry("alice", "c", 3)}},
		{"single key", "c", "c", []command.Entry{entry("alice", "c", 3)}},
		{"bounds not present", "aa", "cc", []command.Entry{entry("alice", "b", 2), entry("alice", "c", 3)}},
		{"everything", "", "zzz", []command.Entry{entry("alice", "a", 1), entry("alice", "b", 2), entry("alice", "c", 3), entry("alice", "d", 4)}},
		{"start after end", "d", "a", nil},
		{"no match", "x", "z", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := database.Range("alice", tt.start, tt.end)
			if got == nil {
				t.Fatal("Range must return an empty slice, not nil")
			}
			requireEntries(t, got, tt.want...)
		})
	}
}

func testList(t *testing.T, database db.KVDB) {
	defer database.Close()

	if got := database.List("nobody"); got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil list, got %v", got)
	}

	// insert out of order, expect ascending key order
	database.Set("u", "k3", 3, 1)
	database.Set("u", "k1", 1, 2)
	database.Set("u", "k2", 2, 3)
	database.Set("ua", "k0", 9, 4) // user id sharing a prefix
	database.Set("t", "k9", 9, 5)

	requireEntries(t, database.List("u"), entry("u", "k1", 1), entry("u", "k2", 2), entry("u", "k3", 3))
}

func testUserIsolation(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.Set("alice", "k", 1, 1)
	database.Set("bob", "k", 2, 2)

	if v, _ := database.Get("alice", "k"); v != 1 {
		t.Errorf("alice: expected 1, got %d", v)
	}
	if v, _ := database.Get("bob", "k"); v != 2 {
		t.Errorf("bob: expected 2, got %d", v)
	}

	database.Delete("bob", "k", 3)
	if _, ok := database.Get("alice", "k"); !ok {
		t.Error("deleting bob's key must not affect alice")
	}

	requireEntries(t, database.List("alice"), entry("alice", "k", 1))
	requireEntries(t, database.Range("bob", "", "z"))
}

func testUsers(t *testing.T, database db.KVDB) {
	defer database.Close()

	if database.HasUser("u") {
		t.Error("Expected unknown user")
	}
	if !database.AddUser("u", 1) {
		t.Error("Expected first AddUser to add the user")
	}
	if database.AddUser("u", 2) {
		t.Error("Expected second AddUser to report an existing user")
	}
	if !database.HasUser("u") {
		t.Error("Expected user to be known")
	}
	if info := database.GetInfo(); info.Users != 1 {
		t.Errorf("Expected 1 user in info, got %d", info.Users)
	}
}

func testWriteIdx(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.Set("u", "a", 1, 10)
	if idx := database.WriteIdx(); idx != 10 {
		t.Errorf("Expected write index 10, got %d", idx)
	}

	// never decreases
	database.Set("u", "b", 1, 5)
	database.SetWriteIdx(3)
	if idx := database.WriteIdx(); idx != 10 {
		t.Errorf("Expected write index to stay at 10, got %d", idx)
	}

	database.SetWriteIdx(11)
	if idx := database.WriteIdx(); idx != 11 {
		t.Errorf("Expected write index 11, got %d", idx)
	}
}

func testApply(t *testing.T, database db.KVDB) {
	defer database.Close()

	records := []command.Record{
		{Type: command.RecordTRegisterUser, Index: 1, UserID: "u"},
		{Type: command.RecordTSet, Index: 2, UserID: "u", Key: "a", Value: 1},
		{Type: command.RecordTUpdate, Index: 3, UserID: "u", Key: "a", Value: 2},
		{Type: command.RecordTSet, Index: 4, UserID: "u", Key: "b", Value: 3},
		{Type: command.RecordTDelete, Index: 5, UserID: "u", Key: "b"},
	}
	for _, rec := range records {
		if err := db.Apply(database, rec); err != nil {
			t.Fatalf("Apply(%v) failed: %v", rec, err)
		}
	}

	if !database.HasUser("u") {
		t.Error("Expected registered user")
	}
	requireEntries(t, database.List("u"), entry("u", "a", 2))
	if idx := database.WriteIdx(); idx != 5 {
		t.Errorf("Expected write index 5, got %d", idx)
	}

	// writes register their user, deletes do not
	for _, rec := range []command.Record{
		{Type: command.RecordTSet, Index: 6, UserID: "v", Key: "a", Value: 1},
		{Type: command.RecordTUpdate, Index: 7, UserID: "w", Key: "a", Value: 1},
		{Type: command.RecordTDelete, Index: 8, UserID: "x", Key: "a"},
	} {
		if err := db.Apply(database, rec); err != nil {
			t.Fatalf("Apply(%v) failed: %v", rec, err)
		}
	}
	for user, want := range map[string]bool{"v": true, "w": true, "x": false} {
		if got := database.HasUser(user); got != want {
			t.Errorf("HasUser(%q) = %t, want %t", user, got, want)
		}
	}

	if err := db.Apply(database, command.Record{Type: command.RecordType(99)}); err == nil {
		t.Error("Expected error for unknown record type")
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		database.Set(fmt.Sprintf("user-%d", i%7), fmt.Sprintf("save-load-test-key-%d", i), uint64(i), uint64(i+1))
	}
	database.AddUser("user-0", uint64(numEntries+1))
	database.AddUser("only-registered", uint64(numEntries+2))

	// state in the target must be replaced, not merged
	database2.Set("stale", "stale", 1, 1)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		user := fmt.Sprintf("user-%d", i%7)
		key := fmt.Sprintf("save-load-test-key-%d", i)
		if v, ok := database2.Get(user, key); !ok || v != uint64(i) {
			t.Fatalf("Value mismatch for %s/%s: expected %d, got (%d, %t)", user, key, i, v, ok)
		}
	}

	if _, ok := database2.Get("stale", "stale"); ok {
		t.Error("Expected Load to replace the previous state")
	}
	if !database2.HasUser("only-registered") || !database2.HasUser("user-0") {
		t.Error("Expected registered users to survive Save/Load")
	}
	if database2.WriteIdx() != database.WriteIdx() {
		t.Errorf("Expected write index %d, got %d", database.WriteIdx(), database2.WriteIdx())
	}
	if a, b := database.GetInfo().Keys, database2.GetInfo().Keys; a != b {
		t.Errorf("Expected %d keys, got %d", a, b)
	}
}

func testSnapshotFile(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()
	defer database.Close()
	defer database2.Close()

	path := filepath.Join(t.TempDir(), db.SnapshotFileName)

	loaded, err := db.LoadSnapshot(database2, path)
	if err != nil || loaded {
		t.Fatalf("Expected (false, nil) for a missing snapshot, got (%t, %v)", loaded, err)
	}

	database.Set("u", "k", 42, 7)
	if err := db.SaveSnapshot(database, path); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	// overwrite an existing snapshot
	database.Set("u", "k", 43, 8)
	if err := db.SaveSnapshot(database, path); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	loaded, err = db.LoadSnapshot(database2, path)
	if err != nil || !loaded {
		t.Fatalf("Expected (true, nil), got (%t, %v)", loaded, err)
	}
	if v, ok := database2.Get("u", "k"); !ok || v != 43 {
		t.Errorf("Expected 43, got (%d, %t)", v, ok)
	}
	if idx := database2.WriteIdx(); idx != 8 {
		t.Errorf("Expected write index 8, got %d", idx)
	}

	matches, _ := filepath.Glob(path + ".tmp-*")
	if len(matches) != 0 {
		t.Errorf("Expected no leftover temp files, got %v", matches)
	}
}

func testLoadInvalid(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.Set("u", "k", 1, 1)

	if err := database.Load(bytes.NewReader([]byte("NOTASNAPSHOT"))); err == nil {
		t.Error("Expected error for invalid magic number")
	}
	if err := database.Load(bytes.NewReader(nil)); err == nil {
		t.Error("Expected error for empty input")
	}

	// a failed load keeps the previous state
	if v, ok := database.Get("u", "k"); !ok || v != 1 {
		t.Errorf("Expected state to be unchanged, got (%d, %t)", v, ok)
	}
}
