package quic

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/roc/rpc/common"
	"github.com/ValentinKolb/roc/rpc/transport"
	"github.com/ValentinKolb/roc/rpc/transport/base"
	"github.com/quic-go/quic-go"
)

const dialTimeout = 5 * time.Second

// NewQUICClientTransport creates a QUIC client transport. One connection per endpoint is
// kept open, every request opens a fresh bidirectional stream on it.
func NewQUICClientTransport() transport.IRPCClientTransport {
	return &quicClientTransport{}
}

type quicClientTransport struct {
	config    common.ClientConfig
	tlsConfig *tls.Config
	endpoints []*endpointConn
	counter   uint64
}

// endpointConn is the (lazily re-established) connection to one endpoint
type endpointConn struct {
	mu       sync.Mutex
	endpoint string
	conn     *quic.Conn
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *quicClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}
	_ = t.Close()

	t.config = config
	t.tlsConfig = clientTLSConfig(config.Transport.TLSConf)
	t.endpoints = make([]*endpointConn, len(config.Transport.Endpoints))

	connected := 0
	for i, endpoint := range config.Transport.Endpoints {
		ep := &endpointConn{endpoint: endpoint}
		t.endpoints[i] = ep
		if _, err := t.get(ep); err != nil {
			Logger.Warningf("Failed to connect to %s: %v", endpoint, err)
			continue
		}
		connected++
	}

	if connected == 0 {
		return fmt.Errorf("failed to connect to any endpoint")
	}
	return nil
}

func (t *quicClientTransport) Send(req []byte) ([]byte, error) {
	if len(t.endpoints) == 0 {
		return nil, fmt.Errorf("quic transport not initialized")
	}

	attempts := t.config.Transport.RetryCount
	if attempts < 1 {
		attempts = 1
	}
	backoffMs := 50

	var lastErr error
	for i := 0; i < attempts; i++ {
		ep := t.endpoints[atomic.AddUint64(&t.counter, 1)%uint64(len(t.endpoints))]

		resp, err := t.exchange(ep, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", i+1, attempts, ep.endpoint, err)

		if i < attempts-1 {
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}
	return nil, fmt.Errorf("failed to send request after %d attempts: %w", attempts, lastErr)
}

func (t *quicClientTransport) Close() error {
	for _, ep := range t.endpoints {
		ep.mu.Lock()
		if ep.conn != nil {
			_ = ep.conn.CloseWithError(codeNoError, "client closed")
			ep.conn = nil
		}
		ep.mu.Unlock()
	}
	t.endpoints = nil
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// get returns the open connection of an endpoint, dialing it if needed
func (t *quicClientTransport) get(ep *endpointConn) (*quic.Conn, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.conn != nil && ep.conn.Context().Err() == nil {
		return ep.conn, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := quic.DialAddr(ctx, ep.endpoint, t.tlsConfig, &quic.Config{
		KeepAlivePeriod: keepAlivePeriod,
		MaxIdleTimeout:  maxIdleTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", ep.endpoint, err)
	}
	ep.conn = conn
	return conn, nil
}

// exchange sends one request on a new stream and reads the response
func (t *quicClientTransport) exchange(ep *endpointConn, req []byte) ([]byte, error) {
	conn, err := t.get(ep)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if timeout := t.config.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	if err := base.WriteLine(stream, req); err != nil {
		stream.CancelRead(0)
		return nil, fmt.Errorf("error writing request: %w", err)
	}
	// closes the send direction, the server sees the end of the request
	if err := stream.Close(); err != nil {
		return nil, err
	}

	resp, err := base.ReadLine(bufio.NewReader(stream))
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	return resp, nil
}
