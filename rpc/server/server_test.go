package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/store"
	"github.com/ValentinKolb/roc/lib/wal"
	"github.com/ValentinKolb/roc/rpc/client"
	"github.com/ValentinKolb/roc/rpc/common"
	"github.com/ValentinKolb/roc/rpc/transport/unix"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	server *RPCServer
	config common.ServerConfig
	cancel context.CancelFunc
	done   chan error
	exits  chan int
}

func testConfig(t *testing.T, dataDir string) common.ServerConfig {
	config := common.DefaultServerConfig()
	config.Transport.Type = common.TransportUnix
	config.Transport.Endpoint = filepath.Join(t.TempDir(), "roc.sock")
	config.DataDir = dataDir
	config.SnapshotIntervalSecond = 0
	config.AdminEndpoint = "127.0.0.1:0"
	config.LogLevel = "warning"
	return config
}

// startServer runs a server on dataDir and waits until it is ready
func startServer(t *testing.T, dataDir string, opts ...func(*common.ServerConfig)) *testServer {
	t.Helper()

	ts := &testServer{
		config: testConfig(t, dataDir),
		done:   make(chan error, 1),
		exits:  make(chan int, 1),
	}
	for _, opt := range opts {
		opt(&ts.config)
	}
	ts.server = NewRPCServer(ts.config, unix.NewUnixDefaultServerTransport())
	ts.server.Exit = func(code int) { ts.exits <- code }

	ctx, cancel := context.WithCancel(context.Background())
	ts.cancel = cancel
	go func() { ts.done <- ts.server.Serve(ctx) }()

	select {
	case <-ts.server.Ready():
	case err := <-ts.done:
		t.Fatalf("server stopped during startup: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}
	require.Eventually(t, func() bool { return ts.server.Addr() != nil }, 5*time.Second, 10*time.Millisecond)

	t.Cleanup(func() { ts.stop(t) })
	return ts
}

// stop cancels the server and waits for Serve to return
func (ts *testServer) stop(t *testing.T) error {
	t.Helper()
	ts.cancel()
	select {
	case err, ok := <-ts.done:
		if !ok {
			return nil
		}
		close(ts.done)
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

func (ts *testServer) connect(t *testing.T) store.IStore {
	t.Helper()
	transport := unix.NewUnixClientTransport()
	s, err := client.NewRPCStore(common.ClientConfig{
		Transport: common.ClientTransportConfig{
			Type:       common.TransportUnix,
			Endpoints:  []string{ts.server.Addr().String()},
			RetryCount: 2,
		},
		TimeoutSecond: 5,
	}, transport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })
	return s
}

func (ts *testServer) admin(t *testing.T, cmd string) (int, string) {
	t.Helper()
	resp, err := http.Post("http://"+ts.server.AdminAddr().String()+"/admin/"+cmd, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func checkpoint(t *testing.T, dataDir string) wal.Flag {
	t.Helper()
	flag, present, err := wal.ReadCheckpoint(filepath.Join(dataDir, wal.CheckpointFileName))
	require.NoError(t, err)
	require.True(t, present)
	return flag
}

func TestServerOperations(t *testing.T) {
	ts := startServer(t, t.TempDir())
	s := ts.connect(t)

	userID, err := s.Hi("")
	require.NoError(t, err)
	require.NotEmpty(t, userID)

	again, err := s.Hi(userID)
	require.NoError(t, err)
	require.Equal(t, userID, again)

	pong, err := s.Ping(userID)
	require.NoError(t, err)
	require.Equal(t, store.PingResponse, pong)

	require.NoError(t, s.Set(userID, "b", 2))
	require.NoError(t, s.Set(userID, "a", 1))
	require.NoError(t, s.Update(userID, "c", 3))

	v, ok, err := s.Get(userID, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), v)

	_, ok, err = s.Get(userID, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	entries, err := s.Range(userID, "a", "b")
	require.NoError(t, err)
	require.Equal(t, []command.Entry{
		{UserID: userID, Key: "a", Value: 1},
		{UserID: userID, Key: "b", Value: 2},
	}, entries)

	entries, err = s.Range(userID, "z", "a")
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, s.Delete(userID, "b"))
	require.NoError(t, s.Delete(userID, "b"))

	entries, err = s.List(userID)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, []string{entries[0].Key, entries[1].Key})

	// keys of other users are invisible
	other, err := s.Hi("")
	require.NoError(t, err)
	require.NotEqual(t, userID, other)
	entries, err = s.List(other)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, s.Exit(userID))
}

func TestServerHandle(t *testing.T) {
	ts := startServer(t, t.TempDir())

	tests := []struct {
		name string
		req  string
		want string
	}{
		{"malformed", `{"command":`, `{"Err":"invalid request`},
		{"unknown command", `{"command":"FLY"}`, `{"Err":"invalid request: unknown command \"FLY\""}`},
		{"missing key", `{"command":"GET","user_id":"u"}`, `{"Err":"invalid request: GET requires field \"key\""}`},
		{"get absent", `{"command":"GET","user_id":"u","key":"nope"}`, `{"Ok":null}`},
		{"set", `{"command":"SET","user_id":"u","key":"k","value":7}`, `{"Ok":null}`},
		{"get", `{"command":"GET","user_id":"u","key":"k"}`, `{"Ok":7}`},
		{"list", `{"command":"LIST","user_id":"u"}`, `{"Ok":[[["u","k"],7]]}`},
		{"ping", `{"command":"PING","user_id":"u"}`, `{"response":"Server Running!"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := string(ts.server.Handle([]byte(tt.req)))
			require.True(t, strings.HasPrefix(resp, tt.want), "got %s", resp)
		})
	}
}

func TestServerAdminShutdown(t *testing.T) {
	dataDir := t.TempDir()
	ts := startServer(t, dataDir)
	s := ts.connect(t)

	userID, err := s.Hi("")
	require.NoError(t, err)
	require.NoError(t, s.Set(userID, "x", 42))
	require.Equal(t, wal.FlagDirty, checkpoint(t, dataDir))

	code, body := ts.admin(t, "shutdown")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"Ok":null}`, body)

	select {
	case err := <-ts.done:
		require.NoError(t, err)
		close(ts.done)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after admin shutdown")
	}
	require.Equal(t, wal.FlagClean, checkpoint(t, dataDir))

	// restart on the same directory, the data and the user id survive
	ts = startServer(t, dataDir)
	s = ts.connect(t)

	again, err := s.Hi(userID)
	require.NoError(t, err)
	require.Equal(t, userID, again)

	v, ok, err := s.Get(userID, "x")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), v)
}

func TestServerAdminCrash(t *testing.T) {
	dataDir := t.TempDir()
	ts := startServer(t, dataDir)
	s := ts.connect(t)

	userID, err := s.Hi("")
	require.NoError(t, err)
	for i, key := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(userID, key, uint64(i)))
	}
	require.NoError(t, s.Delete(userID, "b"))

	code, _ := ts.admin(t, "crash")
	require.Equal(t, http.StatusOK, code)

	select {
	case exitCode := <-ts.exits:
		require.Equal(t, 1, exitCode)
	case <-time.After(5 * time.Second):
		t.Fatal("crash did not exit")
	}
	require.Equal(t, wal.FlagDirty, checkpoint(t, dataDir))

	// the state a crashed process leaves behind: dirty flag and the log
	crashDir := t.TempDir()
	for _, name := range []string{wal.FileName, wal.CheckpointFileName} {
		data, err := os.ReadFile(filepath.Join(dataDir, name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(crashDir, name), data, 0o644))
	}

	recovered := startServer(t, crashDir)
	rs := recovered.connect(t)

	entries, err := rs.List(userID)
	require.NoError(t, err)
	require.Equal(t, []command.Entry{
		{UserID: userID, Key: "a", Value: 0},
		{UserID: userID, Key: "c", Value: 2},
	}, entries)

	again, err := rs.Hi(userID)
	require.NoError(t, err)
	require.Equal(t, userID, again)
}

func TestServerAdminMaintenance(t *testing.T) {
	dataDir := t.TempDir()
	ts := startServer(t, dataDir)
	s := ts.connect(t)

	userID, err := s.Hi("")
	require.NoError(t, err)
	require.NoError(t, s.Set(userID, "k", 1))

	code, _ := ts.admin(t, "snapshot")
	require.Equal(t, http.StatusOK, code)
	_, err = os.Stat(filepath.Join(dataDir, "state.snap"))
	require.NoError(t, err)

	code, _ = ts.admin(t, "clear-log")
	require.Equal(t, http.StatusOK, code)

	code, _ = ts.admin(t, "reboot")
	require.Equal(t, http.StatusNotFound, code)

	resp, err := http.Get("http://" + ts.server.AdminAddr().String() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// served from memory after the log was cleared
	v, ok, err := s.Get(userID, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), v)
}

func TestServerSwitchEngine(t *testing.T) {
	dataDir := t.TempDir()
	ts := startServer(t, dataDir)
	s := ts.connect(t)

	userID, err := s.Hi("")
	require.NoError(t, err)
	require.NoError(t, s.Set(userID, "k", 3))
	require.NoError(t, ts.stop(t))

	// the snapshot format is shared, maple picks up the state btree left behind
	ts = startServer(t, dataDir, func(c *common.ServerConfig) { c.Engine = "maple" })
	s = ts.connect(t)

	v, ok, err := s.Get(userID, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), v)
}

func TestServerInvalidConfig(t *testing.T) {
	config := testConfig(t, "")
	err := NewRPCServer(config, unix.NewUnixDefaultServerTransport()).Serve(context.Background())
	require.Error(t, err)
}
