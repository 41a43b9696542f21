package admin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/wal"
	"github.com/stretchr/testify/require"
)

// fakeEngine records maintenance commands and answers them
type fakeEngine struct {
	mu   sync.Mutex
	seen []command.Type
	err  error
}

func (f *fakeEngine) Submit(_ context.Context, cmd command.Command) error {
	f.mu.Lock()
	f.seen = append(f.seen, cmd.Type())
	f.mu.Unlock()

	switch c := cmd.(type) {
	case command.Persist:
		c.Reply.Send(command.Ack{}, f.err)
	case command.ClearLog:
		c.Reply.Send(command.Ack{}, f.err)
	default:
		cmd.Fail(errors.New("unexpected command"))
	}
	return nil
}

func (f *fakeEngine) types() []command.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]command.Type(nil), f.seen...)
}

func startController(t *testing.T, engine Submitter, cfg Config) *Controller {
	t.Helper()
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 4
	}
	c := New(engine, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"shutdown", KindShutdown, false},
		{"  SHUTDOWN ", KindShutdown, false},
		{"crash", KindCrash, false},
		{"clear", KindClearLog, false},
		{"clear-log", KindClearLog, false},
		{"snapshot", KindSnapshot, false},
		{"persist", KindSnapshot, false},
		{"reboot", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestShutdownOnce(t *testing.T) {
	var calls atomic.Int32
	c := startController(t, &fakeEngine{}, Config{OnShutdown: func() { calls.Add(1) }})

	require.NoError(t, c.Do(testCtx(t), KindShutdown))
	require.NoError(t, c.Do(testCtx(t), KindShutdown))
	require.Equal(t, int32(1), calls.Load())
}

func TestCrashMarksDirtyAndExits(t *testing.T) {
	path := filepath.Join(t.TempDir(), wal.CheckpointFileName)
	require.NoError(t, wal.WriteCheckpoint(path, wal.FlagClean))

	exited := make(chan int, 1)
	c := startController(t, &fakeEngine{}, Config{
		CheckpointPath: path,
		Exit:           func(code int) { exited <- code },
	})

	require.NoError(t, c.Do(testCtx(t), KindCrash))

	select {
	case code := <-exited:
		require.Equal(t, 1, code)
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not exit")
	}

	flag, present, err := wal.ReadCheckpoint(path)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, wal.FlagDirty, flag)
}

func TestMaintenanceForwarded(t *testing.T) {
	engine := &fakeEngine{}
	c := startController(t, engine, Config{})

	require.NoError(t, c.Do(testCtx(t), KindSnapshot))
	require.NoError(t, c.Do(testCtx(t), KindClearLog))
	require.Equal(t, []command.Type{command.TypePersist, command.TypeClearLog}, engine.types())
}

func TestMaintenanceErrorRelayed(t *testing.T) {
	engine := &fakeEngine{err: errors.New("disk full")}
	c := startController(t, engine, Config{})

	err := c.Do(testCtx(t), KindSnapshot)
	require.ErrorContains(t, err, "disk full")
}

func TestConsole(t *testing.T) {
	var shutdowns atomic.Int32
	engine := &fakeEngine{}
	c := startController(t, engine, Config{OnShutdown: func() { shutdowns.Add(1) }})

	in := strings.NewReader("\nsnapshot\nbogus\nclear-log\nshutdown\nsnapshot\n")
	var out bytes.Buffer
	require.NoError(t, RunConsole(testCtx(t), c, in, &out))

	text := out.String()
	require.Contains(t, text, ConsolePrompt)
	require.Contains(t, text, "snapshot: ok")
	require.Contains(t, text, "unknown admin command")
	require.Contains(t, text, "clear-log: ok")
	require.Contains(t, text, "shutdown: ok")
	require.Equal(t, int32(1), shutdowns.Load())

	// the console stops after shutdown, the trailing snapshot is never executed
	require.Equal(t, []command.Type{command.TypePersist, command.TypeClearLog}, engine.types())
}

func TestConsoleEOF(t *testing.T) {
	c := startController(t, &fakeEngine{}, Config{})
	var out bytes.Buffer
	require.NoError(t, RunConsole(testCtx(t), c, strings.NewReader("snapshot\n"), &out))
	require.Contains(t, out.String(), "snapshot: ok")
}

func TestHTTPHandler(t *testing.T) {
	var shutdowns atomic.Int32
	c := startController(t, &fakeEngine{}, Config{OnShutdown: func() { shutdowns.Add(1) }})
	srv := httptest.NewServer(NewHTTPHandler(c, func() any { return map[string]int{"keys": 3} }, time.Second, true))
	defer srv.Close()

	post := func(path string) (int, string) {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	status, body := post("/admin/snapshot")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"Ok":null}`, body)

	status, _ = post("/admin/reboot")
	require.Equal(t, http.StatusNotFound, status)

	status, _ = post("/admin/shutdown")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, int32(1), shutdowns.Load())

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.JSONEq(t, `{"keys":3}`, string(b))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// admin commands only accept POST
	resp, err = http.Get(srv.URL + "/admin/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
