package wal

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/stretchr/testify/require"
)

func testRecords(n int) []command.Record {
	records := make([]command.Record, n)
	for i := range records {
		records[i] = command.Record{
			Type:   command.RecordTSet,
			Index:  uint64(i + 1),
			UserID: "user",
			Key:    string(rune('a' + i%26)),
			Value:  uint64(i * 10),
		}
	}
	return records
}

func writeLog(t *testing.T, path string, records []command.Record) {
	t.Helper()
	l, err := Open(path)
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, l.Append(rec))
	}
	require.NoError(t, l.Close())
}

func TestAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	records := testRecords(50)
	writeLog(t, path, records)

	got, err := ReadAll(path)
	require.NoError(t, err)
	require.Equal(t, records, got)
}

func TestFrameLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	rec := command.Record{Type: command.RecordTDelete, Index: 1, UserID: "u", Key: "k"}
	writeLog(t, path, []command.Record{rec})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	payload := rec.Serialize()
	require.Equal(t, uint32(len(payload)), binary.LittleEndian.Uint32(data[:4]))
	require.Equal(t, payload, data[4:])
}

func TestReadMissingFile(t *testing.T) {
	got, err := ReadAll(filepath.Join(t.TempDir(), "nope.log"))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	records := testRecords(4)
	writeLog(t, path, records[:2])
	writeLog(t, path, records[2:])

	got, err := ReadAll(path)
	require.NoError(t, err)
	require.Equal(t, records, got)
}

// Appending k records and truncating the file at any byte offset yields exactly the
// records that were fully contained in the prefix.
func TestTornTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	records := testRecords(5)
	writeLog(t, path, records)

	full, err := os.ReadFile(path)
	require.NoError(t, err)

	// end offset of every record
	var ends []int
	off := 0
	for _, rec := range records {
		off += 4 + rec.SizeBytes()
		ends = append(ends, off)
	}
	require.Equal(t, len(full), off)

	for cut := 0; cut <= len(full); cut++ {
		torn := filepath.Join(dir, "torn.log")
		require.NoError(t, os.WriteFile(torn, full[:cut], 0o644))

		want := 0
		for _, end := range ends {
			if end <= cut {
				want++
			}
		}

		r := NewReader(torn)
		var got []command.Record
		for rec := range r.All() {
			got = append(got, rec)
		}
		require.NoError(t, r.Err(), "cut at %d", cut)
		require.Len(t, got, want, "cut at %d", cut)
		require.Equal(t, records[:want], got[:want])

		isBoundary := cut == 0
		for _, end := range ends {
			isBoundary = isBoundary || end == cut
		}
		require.Equal(t, !isBoundary, r.Torn(), "cut at %d", cut)

		validSize := int64(0)
		if want > 0 {
			validSize = int64(ends[want-1])
		}
		require.Equal(t, validSize, r.ValidSize(), "cut at %d", cut)
	}
}

func TestCutTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	records := testRecords(3)
	writeLog(t, path, records)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x07, 0x00})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r := NewReader(path)
	for range r.All() {
	}
	require.True(t, r.Torn())
	require.NoError(t, CutTail(path, r.ValidSize()))

	// records appended after the cut are readable
	more := testRecords(5)[3:]
	writeLog(t, path, more)

	r = NewReader(path)
	var got []command.Record
	for rec := range r.All() {
		got = append(got, rec)
	}
	require.NoError(t, r.Err())
	require.False(t, r.Torn())
	require.Equal(t, append(records, more...), got)
}

func TestCorruptRecordStopsReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	records := testRecords(3)
	writeLog(t, path, records)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// flip a byte inside the second record
	second := 4 + records[0].SizeBytes() + 4 + 3
	data[second] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := ReadAll(path)
	require.NoError(t, err)
	require.Equal(t, records[:1], got)
}

func TestOversizedLengthStopsReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	records := testRecords(1)
	writeLog(t, path, records)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], maxRecordBytes+1)
	_, err = f.Write(header[:])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := ReadAll(path)
	require.NoError(t, err)
	require.Equal(t, records, got)
}

func TestIterationIsRestartable(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeLog(t, path, testRecords(10))

	r := NewReader(path)
	count := func() int {
		n := 0
		for range r.All() {
			n++
		}
		return n
	}
	require.Equal(t, 10, count())
	require.Equal(t, 10, count())

	// early break
	seen := 0
	for range r.All() {
		seen++
		if seen == 3 {
			break
		}
	}
	require.Equal(t, 3, seen)
}

func TestTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	for _, rec := range testRecords(3) {
		require.NoError(t, l.Append(rec))
	}
	require.Greater(t, l.Size(), int64(0))

	require.NoError(t, l.Truncate())
	require.Equal(t, int64(0), l.Size())

	rec := command.Record{Type: command.RecordTSet, Index: 4, UserID: "u", Key: "after", Value: 1}
	require.NoError(t, l.Append(rec))

	got, err := ReadAll(path)
	require.NoError(t, err)
	require.Equal(t, []command.Record{rec}, got)
}

func TestClosedLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	require.ErrorIs(t, l.Append(testRecords(1)[0]), ErrClosed)
	require.ErrorIs(t, l.Truncate(), ErrClosed)
}
