// Package recovery rebuilds the in-memory state at startup from the latest snapshot and,
// after an unclean shutdown, from the write-ahead log.
//
// Every log record carries the write index it was applied under and every snapshot stores
// the highest applied index. Replay skips records at or below the snapshot index, so it
// produces the same state whether it starts from an empty database or from a snapshot.
//
// Replay stops at the first torn or corrupt record. The log is cut at that point before the
// engine appends to it again, otherwise later records would be unreachable on the next replay.
package recovery
