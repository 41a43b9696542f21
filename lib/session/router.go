package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/store"
	"github.com/ValentinKolb/roc/lib/util"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("session")

var sessionsGauge = metrics.GetOrCreateCounter("roc_sessions")

// Submitter accepts commands for the storage engine.
type Submitter interface {
	Submit(ctx context.Context, cmd command.Command) error
}

// Config configures the router and its sessions.
type Config struct {
	// QueueSize is the mailbox capacity of every user session.
	QueueSize int
}

// Router maps user ids to their session and delivers commands. Sessions are created on
// the first command of a user and live until the router is closed.
type Router struct {
	engine   Submitter
	cfg      Config
	sessions *xsync.MapOf[string, *Session]

	// mu guards closed. It is held only around the lookup-or-insert, never while a
	// command is delivered.
	mu      sync.RWMutex
	closed  bool
	running sync.WaitGroup
}

// NewRouter creates a router that forwards storage commands to engine.
func NewRouter(engine Submitter, cfg Config) *Router {
	return &Router{
		engine:   engine,
		cfg:      cfg,
		sessions: xsync.NewMapOf[string, *Session](),
	}
}

// Route delivers a command. Hi goes straight to the engine, every other command goes to
// the session of its user, which is created if needed. Route returns once the command is
// enqueued, the answer arrives on the command's reply.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Router) Route(ctx context.Context, cmd command.Command) error {
	switch c := cmd.(type) {
	case command.Hi:
		return r.engine.Submit(ctx, c)
	case command.UserCommand:
		s, err := r.lookup(c.User())
		if err != nil {
			return err
		}
		return s.push(ctx, c)
	default:
		return fmt.Errorf("%w: %s cannot be routed to a user", command.ErrUnknownType, cmd.Type())
	}
}

// lookup returns the session of the user, spawning it on first use.
func (r *Router) lookup(userID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, store.ErrClosed
	}

	s, loaded := r.sessions.LoadOrCompute(userID, func() *Session {
		return newSession(userID, r.engine, r.cfg.QueueSize)
	})
	if !loaded {
		r.running.Add(1)
		sessionsGauge.Inc()
		go func() {
			defer r.running.Done()
			defer sessionsGauge.Dec()
			s.run()
		}()
		log.Debugf("spawned session for user %s", userID)
	}
	return s, nil
}

// Len returns the number of live sessions.
func (r *Router) Len() int {
	return r.sessions.Size()
}

// Close stops accepting commands, lets every session drain its mailbox and waits until
// all sessions have stopped. Commands forwarded by the sessions are already queued at the
// engine when Close returns.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.sessions.Range(func(_ string, s *Session) bool {
		s.mailbox.Close()
		return true
	})
	r.running.Wait()
	log.Infof("closed %d sessions", r.sessions.Size())
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// Session is the actor of a single user. It answers Ping and Exit itself and forwards
// every storage command to the engine in arrival order.
type Session struct {
	userID  string
	engine  Submitter
	mailbox *util.Mailbox[command.Command]
}

func newSession(userID string, engine Submitter, queueSize int) *Session {
	return &Session{
		userID:  userID,
		engine:  engine,
		mailbox: util.NewMailbox[command.Command](queueSize),
	}
}

func (s *Session) push(ctx context.Context, cmd command.Command) error {
	if err := s.mailbox.Push(ctx, cmd); err != nil {
		if errors.Is(err, util.ErrMailboxClosed) {
			return store.ErrClosed
		}
		return err
	}
	return nil
}

// run processes the mailbox until it is closed and drained.
func (s *Session) run() {
	for cmd := range s.mailbox.Recv() {
		switch c := cmd.(type) {
		case command.Ping:
			c.Reply.Send(store.PingResponse, nil)
		case command.Exit:
			log.Infof("user %s exited", s.userID)
			c.Reply.Send(command.Ack{}, nil)
		default:
			// the engine answers, the session does not wait for it
			if err := s.engine.Submit(context.Background(), cmd); err != nil {
				cmd.Fail(err)
			}
		}
	}
}
