// Package db provides the interface of the ordered in-memory state behind the roc store.
//
// Key Components:
//
//   - KVDB Interface: ordered (user id, key) -> uint64 map with per-user Range and List,
//     a registry of known user ids and binary persistence (Save, Load).
//
//   - Apply: replays a write-ahead log record against a KVDB. Recovery and the engine use
//     the same function so a replayed record has exactly the effect it had live.
//
//   - Snapshot files: SaveSnapshot writes the state atomically (temp file, fsync, rename,
//     directory fsync), LoadSnapshot restores it. EncodeSnapshot and DecodeSnapshot
//     implement the file format shared by all engines:
//
//     1. Magic number "ROCSNAP\x00" to identify the file format
//     2. Version (1 byte)
//     3. Compression (1 byte): 0 = none, 1 = zstd (github.com/klauspost/compress/zstd)
//     4. Body, compressed as announced in the header: write index (8 bytes), user
//     count (8 bytes) followed by the user ids, entry count (8 bytes) followed by
//     (user id, key, value) triples
//
//     All integers are little endian, strings are prefixed with their length as uint32.
//
// Note on the write index:
//   - Every mutation carries the log index it was written under. The database remembers the
//     highest one and stores it in every snapshot. Replaying the log after loading a snapshot
//     skips all records at or below that index, which makes replay idempotent.
//   - Monotonicity Guarantee: the write index only increases. Attempts to set a lower index
//     are ignored.
//
// Related Packages:
//
// The engines/btree package (github.com/ValentinKolb/roc/lib/db/engines/btree) implements
// KVDB on top of github.com/google/btree. The engines/maple package keeps a hash table per
// user and sorts keys on demand.
//
// The testing package (github.com/ValentinKolb/roc/lib/db/testing) provides
// standardized tests and benchmarks for KVDB implementations.
package db
