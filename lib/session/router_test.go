package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/store"
	"github.com/stretchr/testify/require"
)

// fakeEngine records submitted commands and answers Get with the submission order
type fakeEngine struct {
	mu        sync.Mutex
	submitted []command.Command
	block     map[string]chan struct{} // user id -> released when closed
	closed    bool
}

func (f *fakeEngine) Submit(ctx context.Context, cmd command.Command) error {
	if uc, ok := cmd.(command.UserCommand); ok && f.block != nil {
		if ch, ok := f.block[uc.User()]; ok {
			select {
			case <-ch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return store.ErrClosed
	}
	f.submitted = append(f.submitted, cmd)

	switch c := cmd.(type) {
	case command.Hi:
		c.Reply.Send("minted", nil)
	case command.Get:
		c.Reply.Send(command.Lookup{Value: uint64(len(f.submitted)), Found: true}, nil)
	case command.Set:
		c.Reply.Send(command.Ack{}, nil)
	}
	return nil
}

func (f *fakeEngine) commands() []command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]command.Command(nil), f.submitted...)
}

func wait[T any](t *testing.T, r command.Reply[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.Wait(ctx)
}

func TestPingAndExitAreAnsweredBySession(t *testing.T) {
	engine := &fakeEngine{}
	router := NewRouter(engine, Config{QueueSize: 4})
	defer router.Close()

	ping := command.NewReply[string]()
	require.NoError(t, router.Route(context.Background(), command.Ping{UserID: "u", Reply: ping}))
	resp, err := wait(t, ping)
	require.NoError(t, err)
	require.Equal(t, "Server Running!", resp)

	exit := command.NewReply[command.Ack]()
	require.NoError(t, router.Route(context.Background(), command.Exit{UserID: "u", Reply: exit}))
	_, err = wait(t, exit)
	require.NoError(t, err)

	// the session stays registered after exit
	ping = command.NewReply[string]()
	require.NoError(t, router.Route(context.Background(), command.Ping{UserID: "u", Reply: ping}))
	_, err = wait(t, ping)
	require.NoError(t, err)

	require.Empty(t, engine.commands())
	require.Equal(t, 1, router.Len())
}

func TestHiBypassesSessions(t *testing.T) {
	engine := &fakeEngine{}
	router := NewRouter(engine, Config{QueueSize: 4})
	defer router.Close()

	reply := command.NewReply[string]()
	require.NoError(t, router.Route(context.Background(), command.Hi{Reply: reply}))
	id, err := wait(t, reply)
	require.NoError(t, err)
	require.Equal(t, "minted", id)
	require.Zero(t, router.Len())
}

func TestSessionsAreCreatedOncePerUser(t *testing.T) {
	engine := &fakeEngine{}
	router := NewRouter(engine, Config{QueueSize: 4})
	defer router.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply := command.NewReply[string]()
			if err := router.Route(context.Background(), command.Ping{UserID: fmt.Sprintf("user-%d", i%5), Reply: reply}); err != nil {
				t.Error(err)
				return
			}
			_, _ = wait(t, reply)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 5, router.Len())
}

// Commands of one user reach the engine in the order they were routed.
func TestPerUserOrdering(t *testing.T) {
	engine := &fakeEngine{}
	router := NewRouter(engine, Config{QueueSize: 2})

	var wg sync.WaitGroup
	for u := 0; u < 4; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				cmd := command.Set{UserID: fmt.Sprintf("user-%d", u), Key: "k", Value: uint64(i), Reply: command.NewReply[command.Ack]()}
				if err := router.Route(context.Background(), cmd); err != nil {
					t.Error(err)
					return
				}
			}
		}(u)
	}
	wg.Wait()
	router.Close()

	last := map[string]int64{}
	for _, cmd := range engine.commands() {
		set := cmd.(command.Set)
		prev, seen := last[set.UserID]
		if seen {
			require.Equal(t, prev+1, int64(set.Value), "user %s out of order", set.UserID)
		}
		last[set.UserID] = int64(set.Value)
	}
	require.Len(t, engine.commands(), 400)
}

// A user blocked at the engine does not delay other users.
func TestSlowUserDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	engine := &fakeEngine{block: map[string]chan struct{}{"slow": release}}
	router := NewRouter(engine, Config{QueueSize: 1})
	defer func() {
		close(release)
		router.Close()
	}()

	// fill the slow user's session and mailbox
	for i := 0; i < 2; i++ {
		require.NoError(t, router.Route(context.Background(), command.Set{UserID: "slow", Key: "k", Reply: command.NewReply[command.Ack]()}))
	}

	reply := command.NewReply[command.Lookup]()
	require.NoError(t, router.Route(context.Background(), command.Get{UserID: "fast", Key: "k", Reply: reply}))
	res, err := wait(t, reply)
	require.NoError(t, err)
	require.True(t, res.Found)
}

func TestEngineErrorsAreReplied(t *testing.T) {
	engine := &fakeEngine{closed: true}
	router := NewRouter(engine, Config{QueueSize: 4})
	defer router.Close()

	reply := command.NewReply[command.Ack]()
	require.NoError(t, router.Route(context.Background(), command.Set{UserID: "u", Key: "k", Reply: reply}))
	_, err := wait(t, reply)
	require.ErrorIs(t, err, store.ErrClosed)
}

func TestClosedRouter(t *testing.T) {
	router := NewRouter(&fakeEngine{}, Config{QueueSize: 4})

	reply := command.NewReply[string]()
	require.NoError(t, router.Route(context.Background(), command.Ping{UserID: "u", Reply: reply}))
	_, err := wait(t, reply)
	require.NoError(t, err)

	router.Close()
	router.Close()

	err = router.Route(context.Background(), command.Ping{UserID: "u", Reply: command.NewReply[string]()})
	require.ErrorIs(t, err, store.ErrClosed)
	err = router.Route(context.Background(), command.Ping{UserID: "new", Reply: command.NewReply[string]()})
	require.ErrorIs(t, err, store.ErrClosed)
}

func TestRouteRejectsMaintenanceCommands(t *testing.T) {
	router := NewRouter(&fakeEngine{}, Config{QueueSize: 4})
	defer router.Close()

	err := router.Route(context.Background(), command.Persist{Reply: command.NewReply[command.Ack]()})
	require.ErrorIs(t, err, command.ErrUnknownType)
}
