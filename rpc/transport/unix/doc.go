// Package unix implements the Unix domain socket transport of roc, for clients on the
// same machine as the server. It extends the base transport with Unix socket
// connectors and inherits framing, connection pooling and retries from it.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates the socket file (replacing a stale one) and listens on it
//
// The default server read buffer is 64 KB.
package unix
