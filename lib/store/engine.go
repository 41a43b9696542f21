package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/db"
	"github.com/ValentinKolb/roc/lib/util"
	"github.com/ValentinKolb/roc/lib/wal"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("engine")

var (
	snapshotsTotal      = metrics.GetOrCreateCounter("roc_snapshots_total")
	snapshotErrorsTotal = metrics.GetOrCreateCounter("roc_snapshot_errors_total")
	keysGauge           = metrics.GetOrCreateCounter("roc_keys")
	usersGauge          = metrics.GetOrCreateCounter("roc_users")
)

func commandDuration(t command.Type) *metrics.Histogram {
	return metrics.GetOrCreateHistogram(fmt.Sprintf(`roc_engine_command_duration_seconds{command=%q}`, t.String()))
}

// EngineConfig configures the storage engine.
type EngineConfig struct {
	// QueueSize is the capacity of the engine mailbox. Senders block while it is full.
	QueueSize int
	// SnapshotInterval is the time between periodic snapshots (0 = disabled).
	SnapshotInterval time.Duration
	// SnapshotPath is the file the snapshots are written to.
	SnapshotPath string
	// LastSnapshotIdx is the write index covered by the snapshot on disk.
	LastSnapshotIdx uint64
	// NewUserID mints user ids (nil = random uuid).
	NewUserID func() string
}

// Engine is the single writer of the store. It owns the database and the write-ahead log
// and processes commands strictly one at a time in arrival order. Every mutation is
// appended to the log before it is applied and before it is acknowledged.
type Engine struct {
	db      db.KVDB
	wal     *wal.Log
	cfg     EngineConfig
	mailbox *util.Mailbox[command.Command]
	done    chan struct{}
	info    atomic.Pointer[db.DatabaseInfo]

	lastSnapshotIdx uint64
}

// NewEngine creates an engine for an already recovered database and an open log.
func NewEngine(database db.KVDB, walLog *wal.Log, cfg EngineConfig) *Engine {
	if cfg.NewUserID == nil {
		cfg.NewUserID = func() string { return uuid.New().String() }
	}
	e := &Engine{
		db:              database,
		wal:             walLog,
		cfg:             cfg,
		mailbox:         util.NewMailbox[command.Command](cfg.QueueSize),
		done:            make(chan struct{}),
		lastSnapshotIdx: cfg.LastSnapshotIdx,
	}
	e.publish()
	return e
}

// --------------------------------------------------------------------------
// Mailbox
// --------------------------------------------------------------------------

// Submit enqueues a command, blocking while the mailbox is full.
// Returns ErrClosed once the engine has stopped accepting commands.
func (e *Engine) Submit(ctx context.Context, cmd command.Command) error {
	if err := e.mailbox.Push(ctx, cmd); err != nil {
		if errors.Is(err, util.ErrMailboxClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Close stops accepting commands. Commands already queued are still processed, then Run
// writes a final snapshot and returns.
func (e *Engine) Close() {
	e.mailbox.Close()
}

// Done is closed when Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Info returns the database info as of the last processed command.
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Engine) Info() db.DatabaseInfo {
	return *e.info.Load()
}

// QueueLen returns the number of commands waiting in the mailbox.
func (e *Engine) QueueLen() int {
	return e.mailbox.Len()
}

// --------------------------------------------------------------------------
// Processing loop
// --------------------------------------------------------------------------

// Run processes commands until the context is done or Close is called. It then drains the
// mailbox and writes a final snapshot. The returned error is the error of that snapshot.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)

	var tick <-chan time.Time
	if e.cfg.SnapshotInterval > 0 {
		ticker := time.NewTicker(e.cfg.SnapshotInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	stop := ctx.Done()
	for {
		select {
		case cmd, ok := <-e.mailbox.Recv():
			if !ok {
				log.Infof("engine stopped, writing final snapshot")
				return e.snapshot(false)
			}
			e.handle(cmd)
		case <-tick:
			if err := e.snapshot(false); err != nil {
				log.Errorf("periodic snapshot failed: %v", err)
			}
		case <-stop:
			e.mailbox.Close()
			stop = nil
		}
	}
}

// handle processes a single command and answers its reply.
func (e *Engine) handle(cmd command.Command) {
	start := time.Now()
	defer commandDuration(cmd.Type()).UpdateDuration(start)

	switch c := cmd.(type) {
	case command.Hi:
		c.Reply.Send(e.hi(c.UserID), nil)

	case command.Set, command.Update, command.Del:
		rec, ok := command.RecordOf(c)
		if !ok {
			panic(fmt.Sprintf("no log record for command %s", cmd.Type()))
		}
		err := e.write(rec)
		c.Fail(err) // a nil error acknowledges

	case command.Get:
		value, ok := e.db.Get(c.UserID, c.Key)
		c.Reply.Send(command.Lookup{Value: value, Found: ok}, nil)

	case command.Range:
		c.Reply.Send(e.db.Range(c.UserID, c.Start, c.End), nil)

	case command.List:
		c.Reply.Send(e.db.List(c.UserID), nil)

	case command.Persist:
		c.Reply.Send(command.Ack{}, e.snapshot(true))

	case command.ClearLog:
		c.Reply.Send(command.Ack{}, e.clearLog())

	default:
		// sessions answer Ping and Exit themselves, anything else here is a routing bug
		panic(fmt.Sprintf("engine received non-storage command %s", cmd.Type()))
	}
}

// write appends the record to the log, then applies it. A record that cannot be logged is
// not applied.
func (e *Engine) write(rec command.Record) error {
	rec.Index = e.db.WriteIdx() + 1

	if err := e.wal.Append(rec); err != nil {
		log.Errorf("failed to log %s for user %s: %v", rec.Type, rec.UserID, err)
		return WrapError(RetCIOError, "append to write-ahead log", err)
	}
	if err := db.Apply(e.db, rec); err != nil {
		return WrapError(RetCInternalError, "apply record", err)
	}
	e.publish()
	return nil
}

// hi echoes a known user id or registers a fresh one.
func (e *Engine) hi(userID string) string {
	if userID != "" && e.db.HasUser(userID) {
		return userID
	}

	id := e.cfg.NewUserID()
	for e.db.HasUser(id) {
		id = e.cfg.NewUserID()
	}

	if err := e.write(command.Record{Type: command.RecordTRegisterUser, UserID: id}); err != nil {
		// the id is still handed out, it is only lost if the server crashes before the next snapshot
		log.Warningf("user %s registered without log record: %v", id, err)
		e.db.AddUser(id, e.db.WriteIdx())
		e.publish()
	}
	log.Debugf("registered user %s", id)
	return id
}

// snapshot writes the full state. Unless forced it is skipped if nothing changed since the
// last snapshot.
func (e *Engine) snapshot(force bool) error {
	idx := e.db.WriteIdx()
	if !force && idx == e.lastSnapshotIdx {
		return nil
	}

	if err := db.SaveSnapshot(e.db, e.cfg.SnapshotPath); err != nil {
		snapshotErrorsTotal.Inc()
		log.Errorf("snapshot at index %d failed: %v", idx, err)
		return WrapError(RetCIOError, "write snapshot", err)
	}

	snapshotsTotal.Inc()
	e.lastSnapshotIdx = idx
	log.Infof("snapshot written at index %d", idx)
	return nil
}

// clearLog truncates the log once its content is covered by a snapshot.
func (e *Engine) clearLog() error {
	if err := e.snapshot(false); err != nil {
		return err
	}
	if err := e.wal.Truncate(); err != nil {
		return WrapError(RetCIOError, "truncate write-ahead log", err)
	}
	return nil
}

// publish makes the current database info visible to other goroutines
func (e *Engine) publish() {
	info := e.db.GetInfo()
	e.info.Store(&info)
	keysGauge.Set(uint64(info.Keys))
	usersGauge.Set(uint64(info.Users))
}
