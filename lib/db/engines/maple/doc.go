// Package maple implements the db.KVDB interface with one hash table per user.
//
// Get, Set and Delete are single map operations. Range and List need the user's keys in
// order: every table keeps a sorted key list that is rebuilt on the first scan after the
// key set of the user changed (overwriting a value keeps it valid). Workloads dominated by
// point operations are faster than with the btree engine, workloads that interleave
// inserts and scans on large keyspaces are slower.
//
// The database is not thread-safe. It is owned by the storage engine, which serializes
// every read and write through a single goroutine.
//
// Snapshots use the shared format of db.EncodeSnapshot, a data directory written by the
// btree engine can be opened with maple and vice versa.
package maple
