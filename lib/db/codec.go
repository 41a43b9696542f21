package db

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"iter"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/klauspost/compress/zstd"
)

const (
	snapshotMagic   = "ROCSNAP\x00" // File format identifier
	snapshotVersion = 1             // Snapshot format version
	maxStringBytes  = 1 << 20       // Upper bound for user ids and keys read from a snapshot
)

// SnapshotState is the engine independent content of a snapshot.
type SnapshotState struct {
	WriteIdx   uint64
	UserCount  int
	Users      iter.Seq[string]
	EntryCount int
	Entries    iter.Seq[command.Entry]
}

// EncodeSnapshot writes the snapshot header followed by the (optionally zstd compressed) body.
// All engines share this format, so a data directory can be opened by any engine.
//
// Header: magic (8 bytes), version (1 byte), compression (1 byte)
// Body:   write index (8 bytes), user count (8 bytes), users, entry count (8 bytes), entries
func EncodeSnapshot(w io.Writer, compression Compression, state SnapshotState) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Write file header
	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return err
	}
	if err := bw.WriteByte(snapshotVersion); err != nil {
		return err
	}
	if err := bw.WriteByte(byte(compression)); err != nil {
		return err
	}

	var body io.Writer = bw
	var enc *zstd.Encoder
	switch compression {
	case CompressionNone:
	case CompressionZstd:
		var err error
		if enc, err = zstd.NewWriter(bw); err != nil {
			return err
		}
		body = enc
	default:
		return fmt.Errorf("unsupported compression: %d", compression)
	}

	if err := writeBody(body, state); err != nil {
		if enc != nil {
			_ = enc.Close()
		}
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

func writeBody(w io.Writer, state SnapshotState) error {
	// Write current write index
	if err := binary.Write(w, binary.LittleEndian, state.WriteIdx); err != nil {
		return err
	}

	// Write users
	if err := binary.Write(w, binary.LittleEndian, uint64(state.UserCount)); err != nil {
		return err
	}
	written := 0
	for userID := range state.Users {
		if err := writeString(w, userID); err != nil {
			return err
		}
		written++
	}
	if written != state.UserCount {
		return fmt.Errorf("snapshot announced %d users but wrote %d", state.UserCount, written)
	}

	// Write entries
	if err := binary.Write(w, binary.LittleEndian, uint64(state.EntryCount)); err != nil {
		return err
	}
	written = 0
	for e := range state.Entries {
		if err := writeString(w, e.UserID); err != nil {
			return err
		}
		if err := writeString(w, e.Key); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, e.Value); err != nil {
			return err
		}
		written++
	}
	if written != state.EntryCount {
		return fmt.Errorf("snapshot announced %d entries but wrote %d", state.EntryCount, written)
	}
	return nil
}

// DecodeSnapshot reads a snapshot written by EncodeSnapshot. Users and entries are passed
// to the callbacks in file order, the write index is returned. The caller must discard
// what it collected if an error is returned.
func DecodeSnapshot(r io.Reader, addUser func(userID string), addEntry func(e command.Entry)) (uint64, error) {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return 0, err
	}
	if string(magicBytes) != snapshotMagic {
		return 0, fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	version, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	if version != snapshotVersion {
		return 0, fmt.Errorf("unsupported version: %d (expected %d)", version, snapshotVersion)
	}

	compression, err := br.ReadByte()
	if err != nil {
		return 0, err
	}

	var body io.Reader = br
	switch Compression(compression) {
	case CompressionNone:
	case CompressionZstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return 0, err
		}
		defer dec.Close()
		body = dec
	default:
		return 0, fmt.Errorf("unsupported compression: %d", compression)
	}

	// Read write index
	var writeIdx uint64
	if err := binary.Read(body, binary.LittleEndian, &writeIdx); err != nil {
		return 0, err
	}

	// Read users
	var userCount uint64
	if err := binary.Read(body, binary.LittleEndian, &userCount); err != nil {
		return 0, err
	}
	for i := uint64(0); i < userCount; i++ {
		userID, err := readString(body)
		if err != nil {
			return 0, err
		}
		addUser(userID)
	}

	// Read entries
	var entryCount uint64
	if err := binary.Read(body, binary.LittleEndian, &entryCount); err != nil {
		return 0, err
	}
	for i := uint64(0); i < entryCount; i++ {
		userID, err := readString(body)
		if err != nil {
			return 0, err
		}
		key, err := readString(body)
		if err != nil {
			return 0, err
		}
		var value uint64
		if err := binary.Read(body, binary.LittleEndian, &value); err != nil {
			return 0, err
		}
		addEntry(command.Entry{UserID: userID, Key: key, Value: value})
	}

	return writeIdx, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringBytes {
		return "", fmt.Errorf("string of length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
