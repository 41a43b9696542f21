// Package tcp implements the TCP socket transport of roc. It provides the TCP
// connectors for the base package, which contributes framing, connection pooling
// and retries. See the base package documentation for the details.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both sides apply the configured socket options (TCP_NODELAY, keep-alive, linger,
// buffer sizes). The default server read buffer is 512 KB.
package tcp
