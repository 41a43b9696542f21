package maple

import (
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/db"
	"github.com/ValentinKolb/roc/lib/db/engines/btree"
	dbtesting "github.com/ValentinKolb/roc/lib/db/testing"
	"github.com/stretchr/testify/require"
)

func TestMapleDB(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB", func() db.KVDB {
		return NewMapleDB(nil)
	})

	dbtesting.RunKVDBTests(t, "MapleDB(zstd)", func() db.KVDB {
		return NewMapleDB(&DBOptions{Compression: db.CompressionZstd})
	})
}

func BenchmarkMapleDB(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "MapleDB", func() db.KVDB {
		return NewMapleDB(nil)
	})
}

func TestSnapshotAcrossEngines(t *testing.T) {
	path := filepath.Join(t.TempDir(), db.SnapshotFileName)

	src := btree.NewBTreeDB(&btree.DBOptions{Compression: db.CompressionZstd})
	src.AddUser("u1", 1)
	src.AddUser("u2", 2)
	src.Set("u1", "b", 2, 3)
	src.Set("u1", "a", 1, 4)
	src.Set("u2", "a", 9, 5)
	require.NoError(t, db.SaveSnapshot(src, path))

	dst := NewMapleDB(nil)
	ok, err := db.LoadSnapshot(dst, path)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, uint64(5), dst.WriteIdx())
	require.True(t, dst.HasUser("u1"))
	require.True(t, dst.HasUser("u2"))
	require.Equal(t, []command.Entry{
		{UserID: "u1", Key: "a", Value: 1},
		{UserID: "u1", Key: "b", Value: 2},
	}, dst.List("u1"))
	require.Equal(t, 3, dst.GetInfo().Keys)
}

func TestSortedKeysFollowChanges(t *testing.T) {
	m := NewMapleDB(nil)
	m.Set("u", "c", 3, 1)
	m.Set("u", "a", 1, 2)
	require.Equal(t, []command.Entry{{UserID: "u", Key: "a", Value: 1}, {UserID: "u", Key: "c", Value: 3}}, m.List("u"))

	m.Set("u", "b", 2, 3)
	m.Delete("u", "a", 4)
	require.Equal(t, []command.Entry{{UserID: "u", Key: "b", Value: 2}, {UserID: "u", Key: "c", Value: 3}}, m.Range("u", "a", "z"))

	m.Delete("u", "b", 5)
	m.Delete("u", "c", 6)
	require.Empty(t, m.List("u"))
	require.Equal(t, 0, m.GetInfo().Keys)
}
