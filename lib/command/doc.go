/*
Package command defines the messages exchanged between the actors of the roc server.

A client request is turned into exactly one Command. Every Command carries a one-shot
Reply channel on which the actor that finally handles it answers exactly once. Replies are
buffered, so the answering actor never blocks, even if the requester has already given up.

Commands that mutate state are written to the write-ahead log as a Record. The Record wire
format is:

	1 byte   record type
	8 bytes  write index (little endian)
	4 bytes  user id length (little endian)
	N bytes  user id
	4 bytes  key length (little endian)
	N bytes  key
	8 bytes  value (little endian)
	4 bytes  crc32 (IEEE) over all previous bytes
*/
package command
