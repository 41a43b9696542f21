package command

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// ErrChecksum is returned by Deserialize if the stored crc32 does not match the payload.
var ErrChecksum = errors.New("record checksum mismatch")

// RecordType defines the mutations that are written to the write-ahead log.
type RecordType uint8

const (
	RecordTSet          RecordType = iota + 1 // Insert or overwrite an entry.
	RecordTUpdate                             // Same effect as RecordTSet.
	RecordTDelete                             // Remove an entry.
	RecordTRegisterUser                       // Register a freshly minted user id.
)

func (rt RecordType) String() string {
	switch rt {
	case RecordTSet:
		return "Set"
	case RecordTUpdate:
		return "Update"
	case RecordTDelete:
		return "Delete"
	case RecordTRegisterUser:
		return "RegisterUser"
	default:
		return fmt.Sprintf("Unknown(%d)", rt)
	}
}

// Record is a single entry of the write-ahead log.
type Record struct {
	Type   RecordType
	Index  uint64
	UserID string
	Key    string
	Value  uint64
}

// fixed part of a record: type + index + userLen + keyLen + value + crc
const recordFixedSize = 1 + 8 + 4 + 4 + 8 + 4

// RecordOf converts a mutating command into its log record. The index is assigned by the caller.
func RecordOf(cmd Command) (Record, bool) {
	switch c := cmd.(type) {
	case Set:
		return Record{Type: RecordTSet, UserID: c.UserID, Key: c.Key, Value: c.Value}, true
	case Update:
		return Record{Type: RecordTUpdate, UserID: c.UserID, Key: c.Key, Value: c.Value}, true
	case Del:
		return Record{Type: RecordTDelete, UserID: c.UserID, Key: c.Key}, true
	default:
		return Record{}, false
	}
}

// SizeBytes returns the exact number of bytes needed to serialize this record
func (r *Record) SizeBytes() int {
	return recordFixedSize + len(r.UserID) + len(r.Key)
}

// Serialize encodes the record in the log format (see package docs).
func (r *Record) Serialize() []byte {
	result := make([]byte, r.SizeBytes())

	result[0] = byte(r.Type)
	binary.LittleEndian.PutUint64(result[1:9], r.Index)

	off := 9
	binary.LittleEndian.PutUint32(result[off:off+4], uint32(len(r.UserID)))
	off += 4
	off += copy(result[off:], r.UserID)

	binary.LittleEndian.PutUint32(result[off:off+4], uint32(len(r.Key)))
	off += 4
	off += copy(result[off:], r.Key)

	binary.LittleEndian.PutUint64(result[off:off+8], r.Value)
	off += 8

	binary.LittleEndian.PutUint32(result[off:], crc32.ChecksumIEEE(result[:off]))
	return result
}

// Deserialize extracts all Record fields from a byte array.
func (r *Record) Deserialize(data []byte) error {
	if len(data) < recordFixedSize {
		return fmt.Errorf("data too short for record: %d bytes", len(data))
	}

	body := data[:len(data)-4]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(data[len(data)-4:]) {
		return ErrChecksum
	}

	rt := RecordType(body[0])
	if rt < RecordTSet || rt > RecordTRegisterUser {
		return fmt.Errorf("%w: record type %d", ErrUnknownType, body[0])
	}

	index := binary.LittleEndian.Uint64(body[1:9])

	off := 9
	userLen := int(binary.LittleEndian.Uint32(body[off : off+4]))
	off += 4
	if len(body) < off+userLen+4+8 {
		return fmt.Errorf("data too short for user id of length %d", userLen)
	}
	userID := string(body[off : off+userLen])
	off += userLen

	keyLen := int(binary.LittleEndian.Uint32(body[off : off+4]))
	off += 4
	if len(body) != off+keyLen+8 {
		return fmt.Errorf("invalid length for key of length %d", keyLen)
	}
	key := string(body[off : off+keyLen])
	off += keyLen

	r.Type = rt
	r.Index = index
	r.UserID = userID
	r.Key = key
	r.Value = binary.LittleEndian.Uint64(body[off : off+8])
	return nil
}
