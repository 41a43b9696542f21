package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/roc/lib/admin"
	"github.com/ValentinKolb/roc/lib/db"
	"github.com/ValentinKolb/roc/lib/db/engines/btree"
	"github.com/ValentinKolb/roc/lib/db/engines/maple"
	"github.com/ValentinKolb/roc/lib/recovery"
	"github.com/ValentinKolb/roc/lib/session"
	"github.com/ValentinKolb/roc/lib/store"
	"github.com/ValentinKolb/roc/lib/store/lstore"
	"github.com/ValentinKolb/roc/lib/wal"
	"github.com/ValentinKolb/roc/rpc/common"
	"github.com/ValentinKolb/roc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("server")

// crashDelay gives the admin transport time to deliver the crash acknowledgement
const crashDelay = 100 * time.Millisecond

// NewRPCServer creates a new RPC server
// It takes a config and a transport as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		quic.NewQUICServerTransport(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewRPCServer(config common.ServerConfig, transport transport.IRPCServerTransport) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:    config,
		transport: transport,
		adapter:   NewIStoreServerAdapter(),
		ready:     make(chan struct{}),
	}
}

// RPCServer wires recovery, the storage engine, the session router, the admin controller
// and the client transport into one process.
type RPCServer struct {
	config    common.ServerConfig
	transport transport.IRPCServerTransport
	adapter   IRPCServerAdapter

	// Console is read by the admin console if config.AdminConsole is set (nil = stdin)
	Console io.Reader
	// ConsoleOut receives the console output (nil = stdout)
	ConsoleOut io.Writer
	// Exit terminates the process on an admin crash (nil = os.Exit)
	Exit func(code int)

	layout        recovery.Layout
	walLog        *wal.Log
	engine        *store.Engine
	router        *session.Router
	admin         *admin.Controller
	store         store.IStore
	adminListener net.Listener

	ready     chan struct{}
	readyOnce sync.Once
}

// Ready is closed once the server recovered its state and started serving.
func (s *RPCServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the address of the client transport (nil before Ready).
func (s *RPCServer) Addr() net.Addr {
	return s.transport.Addr()
}

// AdminAddr returns the address of the admin HTTP listener (nil if disabled).
func (s *RPCServer) AdminAddr() net.Addr {
	if s.adminListener == nil {
		return nil
	}
	return s.adminListener.Addr()
}

// Handle decodes one request line, executes it and returns the encoded response.
// Malformed requests are answered without reaching the store.
func (s *RPCServer) Handle(req []byte) []byte {
	msg, err := common.DecodeRequest(req)
	if err != nil {
		return common.EncodeResponse(common.NewErrorResponse(err.Error()))
	}
	return common.EncodeResponse(s.adapter.Handle(msg, s.store))
}

// --------------------------------------------------------------------------
// Startup
// --------------------------------------------------------------------------

// init recovers the state from disk and creates the actors. Failing to prepare the data
// directory is fatal.
func (s *RPCServer) init() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(s.config.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", s.config.DataDir, err)
	}
	s.layout = recovery.Layout{Dir: s.config.DataDir}

	database, err := s.newDatabase()
	if err != nil {
		return err
	}

	// restore the state before anything can write to the log
	res, err := recovery.Run(database, s.layout)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}
	Logger.Infof("recovered %d keys of %d users (snapshot=%t idx=%d, replayed=%d, torn tail=%t)",
		database.GetInfo().Keys, database.GetInfo().Users, res.SnapshotLoaded, res.SnapshotIdx, res.Replayed, res.TornTail)

	s.walLog, err = wal.Open(s.layout.WALPath())
	if err != nil {
		return err
	}

	// the process is running: until a clean shutdown the log must be replayed
	if err := wal.WriteCheckpoint(s.layout.CheckpointPath(), wal.FlagDirty); err != nil {
		_ = s.walLog.Close()
		return err
	}

	s.engine = store.NewEngine(database, s.walLog, store.EngineConfig{
		QueueSize:        s.config.EngineQueueSize,
		SnapshotInterval: s.config.SnapshotInterval(),
		SnapshotPath:     s.layout.SnapshotPath(),
		LastSnapshotIdx:  res.SnapshotIdx,
	})
	s.router = session.NewRouter(s.engine, session.Config{QueueSize: s.config.SessionQueueSize})
	s.store = lstore.NewLocalStore(s.router, s.config.Timeout())

	if s.config.AdminEndpoint != "" {
		s.adminListener, err = net.Listen("tcp", s.config.AdminEndpoint)
		if err != nil {
			_ = s.walLog.Close()
			return fmt.Errorf("failed to listen on admin endpoint %s: %w", s.config.AdminEndpoint, err)
		}
	}

	s.transport.RegisterHandler(s.Handle)
	return nil
}

// newDatabase creates the configured in-memory engine
func (s *RPCServer) newDatabase() (db.KVDB, error) {
	compression, err := db.ParseCompression(s.config.SnapshotCompression)
	if err != nil {
		return nil, err
	}
	impl, err := db.ParseImplementation(s.config.Engine)
	if err != nil {
		return nil, err
	}

	switch impl {
	case db.ImplMaple:
		return maple.NewMapleDB(&maple.DBOptions{Compression: compression}), nil
	default:
		opts := btree.DefaultOptions()
		opts.Compression = compression
		return btree.NewBTreeDB(opts), nil
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Serve starts the RPC server and blocks until ctx is done, an admin shutdown was
// requested or a component failed. It then shuts down gracefully:
//
//  1. stop the client transport and the admin listener
//  2. close the session router, queued commands still reach the engine
//  3. stop the engine, it drains its mailbox and writes a final snapshot
//  4. close the log and mark the checkpoint CLEAN
//
// The checkpoint stays DIRTY if the final snapshot or closing the log failed.
func (s *RPCServer) Serve(ctx context.Context) error {
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	if err := s.init(); err != nil {
		return err
	}

	// the engine outlives the errgroup, it must drain after the transports stopped
	engineCtx, stopEngine := context.WithCancel(context.Background())
	engineErr := make(chan error, 1)
	go func() { engineErr <- s.engine.Run(engineCtx) }()

	ctx, shutdown := context.WithCancel(ctx)
	defer shutdown()

	s.admin = admin.New(s.engine, admin.Config{
		QueueSize:      s.config.AdminQueueSize,
		CheckpointPath: s.layout.CheckpointPath(),
		OnShutdown:     shutdown,
		Exit:           s.Exit,
		CrashDelay:     crashDelay,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.admin.Run(gctx)
	})

	g.Go(func() error {
		if err := s.transport.Listen(s.config); err != nil {
			return fmt.Errorf("transport failed: %w", err)
		}
		return nil
	})

	var adminServer *http.Server
	if s.adminListener != nil {
		adminServer = &http.Server{
			Handler:           admin.NewHTTPHandler(s.admin, s.healthz, s.config.Timeout(), s.config.LogLevel == "debug"),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			Logger.Infof("Starting admin server on %s", s.adminListener.Addr())
			if err := adminServer.Serve(s.adminListener); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server failed: %w", err)
			}
			return nil
		})
	}

	if s.config.AdminConsole {
		g.Go(func() error {
			in, out := s.Console, s.ConsoleOut
			if in == nil {
				in = os.Stdin
			}
			if out == nil {
				out = os.Stdout
			}
			if err := admin.RunConsole(gctx, s.admin, in, out); err != nil {
				Logger.Warningf("admin console stopped: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		Logger.Infof("shutting down")

		err := s.transport.Close()
		if adminServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = errors.Join(err, adminServer.Shutdown(shutdownCtx))
			cancel()
		}
		return err
	})

	s.readyOnce.Do(func() { close(s.ready) })
	Logger.Infof("roc server ready")

	serveErr := g.Wait()

	// drain: sessions hand their queued commands to the engine, then the engine stops
	s.router.Close()
	stopEngine()
	snapErr := <-engineErr
	walErr := s.walLog.Close()

	if snapErr == nil && walErr == nil {
		if err := wal.WriteCheckpoint(s.layout.CheckpointPath(), wal.FlagClean); err != nil {
			Logger.Errorf("failed to mark checkpoint clean: %v", err)
			return errors.Join(serveErr, err)
		}
		Logger.Infof("shutdown complete, checkpoint is clean")
	} else {
		Logger.Errorf("shutdown incomplete, checkpoint stays dirty (snapshot: %v, log: %v)", snapErr, walErr)
	}

	return errors.Join(serveErr, snapErr, walErr)
}

// healthInfo is served on /healthz
type healthInfo struct {
	Status    string          `json:"status"`
	Transport string          `json:"transport"`
	Sessions  int             `json:"sessions"`
	Queue     int             `json:"engine_queue"`
	WALBytes  int64           `json:"wal_bytes"`
	DB        db.DatabaseInfo `json:"db"`
}

func (s *RPCServer) healthz() any {
	return healthInfo{
		Status:    "ok",
		Transport: string(s.config.Transport.Type),
		Sessions:  s.router.Len(),
		Queue:     s.engine.QueueLen(),
		WALBytes:  s.walLog.Size(),
		DB:        s.engine.Info(),
	}
}
