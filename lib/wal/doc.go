/*
Package wal implements the write-ahead log and the checkpoint flag of the roc server.

Log format:

	[u32 little endian length][record payload] ... repeated

The payload is a command.Record (see package command), which ends in a crc32 of itself.
Append writes, flushes and fsyncs every record before returning.

Reading is tolerant to torn tails: iteration ends at the first incomplete length header,
incomplete payload or undecodable payload and yields everything before it. A torn tail is
logged and counted, it is not an error.

Checkpoint:

The checkpoint file holds exactly one byte. FlagDirty (1) is written when the server starts
serving and FlagClean (0) after a graceful shutdown has produced a final snapshot. Recovery
replays the log only if the flag is DIRTY.
*/
package wal
