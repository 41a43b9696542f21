// Package session implements the per-user actors of the roc server.
//
// The Router keeps a concurrent map (github.com/puzpuzpuz/xsync) from user id to Session.
// The first command of a user atomically spawns its Session, every later command of that
// user is delivered to the same Session. The map is only locked for the lookup-or-insert,
// delivery happens outside of it, so a user with a full mailbox never delays other users.
//
// A Session processes its mailbox in order. Ping and Exit are answered locally, all
// storage commands are forwarded to the engine without waiting for the result. Together
// with the FIFO mailbox of the engine this keeps the commands of a single user in order.
package session
