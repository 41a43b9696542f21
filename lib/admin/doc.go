// Package admin implements the out-of-band operator control of the roc server.
//
// The Controller is an actor with its own mailbox. It never shares a channel with client
// traffic and never passes through the session router. It understands four commands:
//
//   - shutdown: acknowledge, then start the graceful shutdown (the server writes a final
//     snapshot and marks the checkpoint CLEAN)
//   - crash: mark the checkpoint DIRTY, acknowledge, then exit with status 1 without any
//     cleanup, the next start replays the write-ahead log
//   - clear-log: snapshot the state, then truncate the write-ahead log
//   - snapshot: force a snapshot
//
// Operators reach the controller through the line based console (RunConsole, usually on
// stdin) or the admin HTTP listener (NewHTTPHandler), which also serves /metrics and
// /healthz.
package admin
