// Package rpc is the network layer of roc. It exposes a store.IStore over a transport and
// gives clients an IStore that talks to a remote server.
//
// The package is organized into several subpackages:
//
//   - common: Configuration structures, logging and the wire protocol (one JSON request
//     object per line, one JSON response object per line).
//
//   - transport: Network communication abstractions with pluggable implementations
//     (QUIC, TCP, Unix sockets, HTTP).
//
//   - client: store.IStore over a client transport, plus the client side user id file.
//
//   - server: The server process, which recovers the state and wires engine, session
//     router, admin controller and transport together.
package rpc
