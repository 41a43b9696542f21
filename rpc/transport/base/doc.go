// Package base provides the stream connection transport shared by the tcp and unix
// transports. It is independent of the network protocol, the sub packages only
// contribute a connector that dials, listens and tunes sockets.
//
// Framing: every request and every response is a single line terminated by '\n'
// (at most MaxLineBytes). A connection carries any number of exchanges, each request
// line is answered by exactly one response line before the next request is read.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Client implementation that keeps a pool of connections with
//     round-robin selection, multiple connections per endpoint allow concurrent
//     requests. Failed exchanges are retried with exponential backoff on a fresh
//     connection.
//
//   - serverTransport: Server implementation that accepts connections and passes each
//     request line to the registered handler. Close stops accepting, interrupts idle
//     connections and waits until requests in progress were answered.
//
// Thread Safety:
//
//	All public methods are thread-safe. The server creates a dedicated goroutine for
//	each connection, the client locks a connection for the duration of one exchange.
package base
