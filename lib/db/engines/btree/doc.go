// Package btree implements the db.KVDB interface with a single ordered B-tree
// (github.com/google/btree) keyed by (user id, key).
//
// Ordering by user id first keeps all entries of a user contiguous, so Range and List are
// a seek followed by an in-order scan that stops at the first entry of another user.
//
// The database is not thread-safe. It is owned by the storage engine, which serializes
// every read and write through a single goroutine.
//
// Save writes the shared snapshot format of db.EncodeSnapshot with the entries in key
// order.
package btree
