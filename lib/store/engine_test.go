package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/db"
	"github.com/ValentinKolb/roc/lib/db/engines/btree"
	"github.com/ValentinKolb/roc/lib/recovery"
	"github.com/ValentinKolb/roc/lib/wal"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

type testEngine struct {
	*Engine
	layout recovery.Layout
	wal    *wal.Log
	db     db.KVDB
	cancel context.CancelFunc
	result chan error
}

func startEngine(t *testing.T, dir string, cfg EngineConfig) *testEngine {
	t.Helper()
	layout := recovery.Layout{Dir: dir}
	database := btree.NewBTreeDB(nil)
	res, err := recovery.Run(database, layout)
	require.NoError(t, err)

	walLog, err := wal.Open(layout.WALPath())
	require.NoError(t, err)

	cfg.SnapshotPath = layout.SnapshotPath()
	cfg.LastSnapshotIdx = res.SnapshotIdx
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 16
	}
	e := NewEngine(database, walLog, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	te := &testEngine{Engine: e, layout: layout, wal: walLog, db: database, cancel: cancel, result: make(chan error, 1)}
	go func() { te.result <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-e.Done()
		_ = walLog.Close()
	})
	return te
}

// stop shuts the engine down gracefully and returns the error of the final snapshot
func (te *testEngine) stop(t *testing.T) error {
	t.Helper()
	te.cancel()
	select {
	case err := <-te.result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
		return nil
	}
}

func do[T any](t *testing.T, e *Engine, cmd command.Command, reply command.Reply[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Submit(ctx, cmd))
	return reply.Wait(ctx)
}

func set(t *testing.T, e *Engine, user, key string, value uint64) error {
	reply := command.NewReply[command.Ack]()
	_, err := do(t, e, command.Set{UserID: user, Key: key, Value: value, Reply: reply}, reply)
	return err
}

func get(t *testing.T, e *Engine, user, key string) command.Lookup {
	reply := command.NewReply[command.Lookup]()
	res, err := do(t, e, command.Get{UserID: user, Key: key, Reply: reply}, reply)
	require.NoError(t, err)
	return res
}

func list(t *testing.T, e *Engine, user string) []command.Entry {
	reply := command.NewReply[[]command.Entry]()
	res, err := do(t, e, command.List{UserID: user, Reply: reply}, reply)
	require.NoError(t, err)
	return res
}

func hi(t *testing.T, e *Engine, user string) string {
	reply := command.NewReply[string]()
	res, err := do(t, e, command.Hi{UserID: user, Reply: reply}, reply)
	require.NoError(t, err)
	return res
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestEngineBasicOperations(t *testing.T) {
	e := startEngine(t, t.TempDir(), EngineConfig{})

	require.NoError(t, set(t, e.Engine, "u", "a", 1))
	require.Equal(t, command.Lookup{Value: 1, Found: true}, get(t, e.Engine, "u", "a"))
	require.Equal(t, []command.Entry{{UserID: "u", Key: "a", Value: 1}}, list(t, e.Engine, "u"))

	updReply := command.NewReply[command.Ack]()
	_, err := do(t, e.Engine, command.Update{UserID: "u", Key: "a", Value: 5, Reply: updReply}, updReply)
	require.NoError(t, err)
	require.Equal(t, uint64(5), get(t, e.Engine, "u", "a").Value)

	require.NoError(t, set(t, e.Engine, "u", "b", 2))
	require.NoError(t, set(t, e.Engine, "u", "c", 3))
	rangeReply := command.NewReply[[]command.Entry]()
	entries, err := do(t, e.Engine, command.Range{UserID: "u", Start: "b", End: "c", Reply: rangeReply}, rangeReply)
	require.NoError(t, err)
	require.Equal(t, []command.Entry{{UserID: "u", Key: "b", Value: 2}, {UserID: "u", Key: "c", Value: 3}}, entries)

	delReply := command.NewReply[command.Ack]()
	_, err = do(t, e.Engine, command.Del{UserID: "u", Key: "a", Reply: delReply}, delReply)
	require.NoError(t, err)
	require.False(t, get(t, e.Engine, "u", "a").Found)

	// deleting an absent key succeeds
	delReply = command.NewReply[command.Ack]()
	_, err = do(t, e.Engine, command.Del{UserID: "u", Key: "never", Reply: delReply}, delReply)
	require.NoError(t, err)

	require.Equal(t, 2, e.Info().Keys)
}

func TestEngineUserIsolation(t *testing.T) {
	e := startEngine(t, t.TempDir(), EngineConfig{})

	require.NoError(t, set(t, e.Engine, "alice", "k", 1))
	require.NoError(t, set(t, e.Engine, "bob", "k", 2))

	require.Equal(t, uint64(1), get(t, e.Engine, "alice", "k").Value)
	require.Equal(t, uint64(2), get(t, e.Engine, "bob", "k").Value)
	require.Empty(t, list(t, e.Engine, "carol"))
}

func TestEngineHi(t *testing.T) {
	ids := []string{"id-1", "id-1", "id-2", "id-3"}
	next := 0
	e := startEngine(t, t.TempDir(), EngineConfig{NewUserID: func() string {
		id := ids[next]
		next++
		return id
	}})

	first := hi(t, e.Engine, "")
	require.Equal(t, "id-1", first)

	// known id is echoed
	require.Equal(t, first, hi(t, e.Engine, first))

	// collisions with known ids are skipped
	second := hi(t, e.Engine, "")
	require.Equal(t, "id-2", second)

	// unknown ids are replaced by a fresh one
	require.Equal(t, "id-3", hi(t, e.Engine, "made-up"))
	require.Equal(t, 3, e.Info().Users)
}

func TestEngineHiMintsUUIDs(t *testing.T) {
	e := startEngine(t, t.TempDir(), EngineConfig{})
	a := hi(t, e.Engine, "")
	b := hi(t, e.Engine, "")
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
	require.Len(t, a, 36)
}

// Writing a key registers its user, so a later HI with that id is echoed.
func TestEngineSetRegistersUser(t *testing.T) {
	dir := t.TempDir()
	e := startEngine(t, dir, EngineConfig{NewUserID: func() string { return "minted" }})
	require.NoError(t, wal.WriteCheckpoint(e.layout.CheckpointPath(), wal.FlagDirty))

	require.NoError(t, set(t, e.Engine, "u1", "x", 5))
	update := command.NewReply[command.Ack]()
	_, err := do(t, e.Engine, command.Update{UserID: "u2", Key: "y", Value: 6, Reply: update}, update)
	require.NoError(t, err)

	require.Equal(t, "u1", hi(t, e.Engine, "u1"))
	require.Equal(t, "u2", hi(t, e.Engine, "u2"))
	require.Equal(t, 2, e.Info().Users)

	// replay restores the registration as well
	restored := btree.NewBTreeDB(nil)
	_, err = recovery.Run(restored, recovery.Layout{Dir: dir})
	require.NoError(t, err)
	require.True(t, restored.HasUser("u1"))
	require.True(t, restored.HasUser("u2"))
}

// An acknowledged write is on disk before the reply is sent.
func TestEngineLogsBeforeReply(t *testing.T) {
	e := startEngine(t, t.TempDir(), EngineConfig{})

	require.NoError(t, set(t, e.Engine, "u", "a", 1))
	require.NoError(t, set(t, e.Engine, "u", "b", 2))

	records, err := wal.ReadAll(e.layout.WALPath())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, command.Record{Type: command.RecordTSet, Index: 1, UserID: "u", Key: "a", Value: 1}, records[0])
	require.Equal(t, uint64(2), records[1].Index)
}

// A mutation whose log append fails is neither applied nor acknowledged.
func TestEngineWalFailureIsNotApplied(t *testing.T) {
	e := startEngine(t, t.TempDir(), EngineConfig{})

	require.NoError(t, set(t, e.Engine, "u", "a", 1))
	require.NoError(t, e.wal.Close())

	err := set(t, e.Engine, "u", "a", 2)
	var storeErr *Error
	require.True(t, errors.As(err, &storeErr))
	require.Equal(t, RetCIOError, storeErr.Code)
	require.ErrorIs(t, err, wal.ErrClosed)

	require.Equal(t, uint64(1), get(t, e.Engine, "u", "a").Value)
}

func TestEnginePersistAndClearLog(t *testing.T) {
	e := startEngine(t, t.TempDir(), EngineConfig{})

	require.NoError(t, set(t, e.Engine, "u", "a", 1))

	persist := command.NewReply[command.Ack]()
	_, err := do(t, e.Engine, command.Persist{Reply: persist}, persist)
	require.NoError(t, err)
	_, err = os.Stat(e.layout.SnapshotPath())
	require.NoError(t, err)

	require.NoError(t, set(t, e.Engine, "u", "b", 2))
	clearReply := command.NewReply[command.Ack]()
	_, err = do(t, e.Engine, command.ClearLog{Reply: clearReply}, clearReply)
	require.NoError(t, err)
	require.Equal(t, int64(0), e.wal.Size())

	// state is unaffected and the snapshot covers everything
	require.Len(t, list(t, e.Engine, "u"), 2)
	snap := btree.NewBTreeDB(nil)
	_, err = db.LoadSnapshot(snap, e.layout.SnapshotPath())
	require.NoError(t, err)
	require.Len(t, snap.List("u"), 2)
}

func TestEngineGracefulStopWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	e := startEngine(t, dir, EngineConfig{})
	require.NoError(t, set(t, e.Engine, "u", "a", 1))
	require.NoError(t, e.stop(t))

	// further commands are rejected
	err := e.Submit(context.Background(), command.Get{UserID: "u", Key: "a", Reply: command.NewReply[command.Lookup]()})
	require.ErrorIs(t, err, ErrClosed)

	snap := btree.NewBTreeDB(nil)
	loaded, err := db.LoadSnapshot(snap, e.layout.SnapshotPath())
	require.NoError(t, err)
	require.True(t, loaded)
	v, ok := snap.Get("u", "a")
	require.True(t, ok)
	require.Equal(t, uint64(1), v)
}

func TestEngineQueuedCommandsSurviveStop(t *testing.T) {
	e := startEngine(t, t.TempDir(), EngineConfig{QueueSize: 128})

	replies := make([]command.Reply[command.Ack], 100)
	for i := range replies {
		replies[i] = command.NewReply[command.Ack]()
		require.NoError(t, e.Submit(context.Background(), command.Set{UserID: "u", Key: fmt.Sprint(i), Value: uint64(i), Reply: replies[i]}))
	}
	e.Close()

	for i, r := range replies {
		_, err := r.Wait(context.Background())
		require.NoError(t, err, "command %d", i)
	}
	<-e.Done()
	require.Equal(t, 100, e.Info().Keys)
}

// Every acknowledged write is restored after a crash.
func TestEngineCrashRecovery(t *testing.T) {
	dir := t.TempDir()
	e := startEngine(t, dir, EngineConfig{})
	require.NoError(t, wal.WriteCheckpoint(e.layout.CheckpointPath(), wal.FlagDirty))

	for i := 0; i < 50; i++ {
		require.NoError(t, set(t, e.Engine, "u", fmt.Sprintf("k%02d", i), uint64(i)))
	}
	// snapshot in the middle, later writes only live in the log
	persist := command.NewReply[command.Ack]()
	_, err := do(t, e.Engine, command.Persist{Reply: persist}, persist)
	require.NoError(t, err)
	for i := 50; i < 80; i++ {
		require.NoError(t, set(t, e.Engine, "u", fmt.Sprintf("k%02d", i), uint64(i)))
	}

	// no graceful stop: recover from the files as they are
	restored := btree.NewBTreeDB(nil)
	res, err := recovery.Run(restored, recovery.Layout{Dir: dir})
	require.NoError(t, err)
	require.Equal(t, 30, res.Replayed)
	require.Equal(t, list(t, e.Engine, "u"), restored.List("u"))
}

func TestEngineConcurrentWriters(t *testing.T) {
	e := startEngine(t, t.TempDir(), EngineConfig{QueueSize: 4})

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", w)
			for i := 0; i < perWriter; i++ {
				if err := set(t, e.Engine, user, "counter", uint64(i)); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		require.Equal(t, uint64(perWriter-1), get(t, e.Engine, fmt.Sprintf("user-%d", w), "counter").Value)
	}

	records, err := wal.ReadAll(e.layout.WALPath())
	require.NoError(t, err)
	require.Len(t, records, writers*perWriter)
	for i, rec := range records {
		require.Equal(t, uint64(i+1), rec.Index)
	}
}

func TestEnginePeriodicSnapshot(t *testing.T) {
	e := startEngine(t, t.TempDir(), EngineConfig{SnapshotInterval: 10 * time.Millisecond})
	require.NoError(t, set(t, e.Engine, "u", "a", 1))

	require.Eventually(t, func() bool {
		_, err := os.Stat(e.layout.SnapshotPath())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngineRejectsSessionCommands(t *testing.T) {
	e := NewEngine(btree.NewBTreeDB(nil), nil, EngineConfig{})
	require.Panics(t, func() {
		e.handle(command.Ping{UserID: "u", Reply: command.NewReply[string]()})
	})
	require.Panics(t, func() {
		e.handle(command.Exit{UserID: "u", Reply: command.NewReply[command.Ack]()})
	})
}
