package quic

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/roc/rpc/common"
	"github.com/ValentinKolb/roc/rpc/transport"
	"github.com/ValentinKolb/roc/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/quic-go/quic-go"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	// application error codes sent when closing a connection
	codeNoError  quic.ApplicationErrorCode = 0
	codeShutdown quic.ApplicationErrorCode = 1

	keepAlivePeriod = 10 * time.Second
	maxIdleTimeout  = 5 * time.Minute
)

// NewQUICServerTransport creates a QUIC server transport. Every request travels on its own
// bidirectional stream: the client writes one request line and closes its side, the
// server answers with one response line and closes the stream.
func NewQUICServerTransport() transport.IRPCServerTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &quicServerTransport{
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*quic.Conn]struct{}),
	}
}

type quicServerTransport struct {
	handler transport.ServerHandleFunc
	config  common.ServerConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener *quic.Listener
	conns    map[*quic.Conn]struct{}
	closed   bool
	streams  sync.WaitGroup
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *quicServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *quicServerTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	tlsConfig, err := serverTLSConfig(config.Transport.TLSConf)
	if err != nil {
		return err
	}

	listener, err := quic.ListenAddr(config.Transport.Endpoint, tlsConfig, &quic.Config{
		KeepAlivePeriod: keepAlivePeriod,
		MaxIdleTimeout:  maxIdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create QUIC listener: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return listener.Close()
	}
	t.listener = listener
	t.mu.Unlock()

	Logger.Infof("Starting quic server on %s", listener.Addr())

	for {
		conn, err := listener.Accept(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		if !t.track(conn) {
			_ = conn.CloseWithError(codeShutdown, "server shutting down")
			return nil
		}
		go t.handleConnection(conn)
	}
}

func (t *quicServerTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *quicServerTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.cancel()
	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.mu.Unlock()

	// requests in progress are still answered
	t.streams.Wait()

	t.mu.Lock()
	for conn := range t.conns {
		_ = conn.CloseWithError(codeShutdown, "server shutting down")
	}
	t.mu.Unlock()
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *quicServerTransport) track(conn *quic.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.conns[conn] = struct{}{}
	return true
}

func (t *quicServerTransport) untrack(conn *quic.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
}

// handleConnection accepts the streams of one connection
func (t *quicServerTransport) handleConnection(conn *quic.Conn) {
	defer t.untrack(conn)
	Logger.Debugf("Accepted connection from %s", conn.RemoteAddr())

	for {
		stream, err := conn.AcceptStream(t.ctx)
		if err != nil {
			Logger.Debugf("Connection from %s ended: %v", conn.RemoteAddr(), err)
			return
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			stream.CancelRead(0)
			stream.CancelWrite(0)
			return
		}
		t.streams.Add(1)
		t.mu.Unlock()

		go t.handleStream(stream)
	}
}

// handleStream answers the single request carried by a stream
func (t *quicServerTransport) handleStream(stream *quic.Stream) {
	defer t.streams.Done()
	defer stream.Close()

	if timeout := time.Duration(t.config.TimeoutSecond) * time.Second; timeout > 0 {
		_ = stream.SetDeadline(time.Now().Add(timeout))
	}

	req, err := base.ReadLine(bufio.NewReader(stream))
	if err != nil {
		Logger.Warningf("Failed to read request: %v", err)
		stream.CancelRead(0)
		return
	}

	start := time.Now()
	resp := t.handler(req)
	Logger.Debugf("Processed request on stream %d took %s", stream.StreamID(), time.Since(start))

	if err := base.WriteLine(stream, resp); err != nil {
		Logger.Errorf("Failed to write response: %v", err)
	}
}
