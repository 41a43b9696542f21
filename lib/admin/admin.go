package admin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/store"
	"github.com/ValentinKolb/roc/lib/util"
	"github.com/ValentinKolb/roc/lib/wal"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("admin")

// Kind is an operator command.
type Kind uint8

const (
	KindShutdown Kind = iota + 1 // graceful stop
	KindCrash                    // abnormal termination, checkpoint stays DIRTY
	KindClearLog                 // snapshot, then truncate the write-ahead log
	KindSnapshot                 // force a snapshot
)

func (k Kind) String() string {
	switch k {
	case KindShutdown:
		return "shutdown"
	case KindCrash:
		return "crash"
	case KindClearLog:
		return "clear-log"
	case KindSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// ParseKind parses an operator command name (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shutdown":
		return KindShutdown, nil
	case "crash":
		return KindCrash, nil
	case "clear", "clear-log", "clearlog":
		return KindClearLog, nil
	case "snapshot", "persist":
		return KindSnapshot, nil
	default:
		return 0, fmt.Errorf("unknown admin command %q (expected shutdown, crash, clear-log or snapshot)", s)
	}
}

// Request is a message on the admin mailbox.
type Request struct {
	Kind  Kind
	Reply command.Reply[command.Ack]
}

// Submitter accepts commands for the storage engine.
type Submitter interface {
	Submit(ctx context.Context, cmd command.Command) error
}

// Config configures the controller.
type Config struct {
	// QueueSize is the capacity of the admin mailbox.
	QueueSize int
	// CheckpointPath is the checkpoint file a crash marks DIRTY.
	CheckpointPath string
	// OnShutdown starts the graceful shutdown of the server. Called at most once.
	OnShutdown func()
	// Exit terminates the process (nil = os.Exit).
	Exit func(code int)
	// CrashDelay is the time between acknowledging a crash and exiting, it gives
	// transports the chance to deliver the acknowledgement.
	CrashDelay time.Duration
}

// Controller is the actor that executes operator commands. It never sees client traffic.
type Controller struct {
	engine   Submitter
	cfg      Config
	mailbox  *util.Mailbox[Request]
	shutdown sync.Once
}

// New creates a controller that forwards maintenance commands to engine.
func New(engine Submitter, cfg Config) *Controller {
	return &Controller{
		engine:  engine,
		cfg:     cfg,
		mailbox: util.NewMailbox[Request](cfg.QueueSize),
	}
}

// Submit enqueues a request.
func (c *Controller) Submit(ctx context.Context, req Request) error {
	if err := c.mailbox.Push(ctx, req); err != nil {
		if errors.Is(err, util.ErrMailboxClosed) {
			return store.ErrClosed
		}
		return err
	}
	return nil
}

// Do submits an operator command and waits for its acknowledgement.
func (c *Controller) Do(ctx context.Context, kind Kind) error {
	reply := command.NewReply[command.Ack]()
	if err := c.Submit(ctx, Request{Kind: kind, Reply: reply}); err != nil {
		return err
	}
	_, err := reply.Wait(ctx)
	return err
}

// Run processes requests until the context is done. Requests still queued at that point
// are answered with store.ErrClosed.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case req := <-c.mailbox.Recv():
			c.handle(ctx, req)
		case <-ctx.Done():
			c.mailbox.Close()
			for req := range c.mailbox.Recv() {
				req.Reply.Send(command.Ack{}, store.ErrClosed)
			}
			return nil
		}
	}
}

func (c *Controller) handle(ctx context.Context, req Request) {
	log.Infof("admin command %s", req.Kind)

	switch req.Kind {
	case KindShutdown:
		req.Reply.Send(command.Ack{}, nil)
		c.shutdown.Do(func() {
			if c.cfg.OnShutdown != nil {
				c.cfg.OnShutdown()
			}
		})

	case KindCrash:
		if c.cfg.CheckpointPath != "" {
			if err := wal.WriteCheckpoint(c.cfg.CheckpointPath, wal.FlagDirty); err != nil {
				log.Errorf("could not mark checkpoint dirty: %v", err)
			}
		}
		req.Reply.Send(command.Ack{}, nil)
		if c.cfg.CrashDelay > 0 {
			time.Sleep(c.cfg.CrashDelay)
		}
		log.Warningf("crashing on operator request")
		c.exit(1)

	case KindClearLog:
		reply := command.NewReply[command.Ack]()
		req.Reply.Send(c.forward(ctx, command.ClearLog{Reply: reply}, reply))

	case KindSnapshot:
		reply := command.NewReply[command.Ack]()
		req.Reply.Send(c.forward(ctx, command.Persist{Reply: reply}, reply))

	default:
		req.Reply.Send(command.Ack{}, fmt.Errorf("unknown admin command %s", req.Kind))
	}
}

// forward sends a maintenance command to the engine and waits for its reply
func (c *Controller) forward(ctx context.Context, cmd command.Command, reply command.Reply[command.Ack]) (command.Ack, error) {
	if err := c.engine.Submit(ctx, cmd); err != nil {
		return command.Ack{}, err
	}
	return reply.Wait(ctx)
}

func (c *Controller) exit(code int) {
	if c.cfg.Exit != nil {
		c.cfg.Exit(code)
		return
	}
	os.Exit(code)
}
