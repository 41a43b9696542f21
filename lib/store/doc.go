// Package store provides the client facing interface of the roc per-user key-value store
// and the storage engine that backs it.
//
// Key Components:
//
//   - IStore Interface: the operations a client can perform (Hi, Ping, Set, Get, Delete,
//     Update, Range, List, Exit). The rpc client and the in-process lstore implement it, the
//     rpc server exposes it over the network.
//
//   - Engine: the single writer. It owns the db.KVDB and the write-ahead log and processes
//     commands from a bounded mailbox one at a time. Every mutation is appended to the log
//     (write, flush, fsync) before it is applied and before its reply is sent, so an
//     acknowledged write survives a crash. The engine also writes periodic snapshots and
//     serves the Persist and ClearLog maintenance commands.
//
//   - Error System: a structured error type carrying a RetCode. Callers can distinguish
//     I/O failures (RetCIOError) from an unavailable server (RetCUnavailable).
//
//   - Dispatcher: the interface lstore sends commands through. The session router
//     implements it.
//
// Implementations:
//
//	- Local Store (lstore): sends commands through a Dispatcher and waits for the replies.
//	  Available in the "github.com/ValentinKolb/roc/lib/store/lstore" package.
//
//	- Remote Store: speaks the JSON line protocol to a roc server.
//	  Available in the "github.com/ValentinKolb/roc/rpc/client" package.
package store
