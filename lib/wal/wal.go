package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"sync"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("wal")

var (
	appendsTotal       = metrics.GetOrCreateCounter("roc_wal_appends_total")
	appendErrorsTotal  = metrics.GetOrCreateCounter("roc_wal_append_errors_total")
	truncatedTailTotal = metrics.GetOrCreateCounter("roc_wal_truncated_tails_total")
)

// FileName is the name of the write-ahead log inside the data directory.
const FileName = "wal.log"

// maxRecordBytes bounds the length prefix accepted while reading. A larger prefix can only
// come from a torn or corrupted write.
const maxRecordBytes = 4 << 20

// ErrClosed is returned by operations on a closed Log.
var ErrClosed = errors.New("wal closed")

// --------------------------------------------------------------------------
// Log (append side)
// --------------------------------------------------------------------------

// Log is an append-only file of length prefixed records. Every Append is flushed and
// fsynced before it returns, a record that was acknowledged survives a process crash.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *bufio.Writer
	size   int64
	closed bool
}

// Open opens (or creates) the log at path for appending.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat wal %s: %w", path, err)
	}
	return &Log{
		path:   path,
		file:   f,
		writer: bufio.NewWriter(f),
		size:   info.Size(),
	}, nil
}

// Append writes the record as [u32 LE length][payload] and makes it durable.
func (l *Log) Append(rec command.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if err := l.append(rec); err != nil {
		appendErrorsTotal.Inc()
		return err
	}
	appendsTotal.Inc()
	return nil
}

func (l *Log) append(rec command.Record) error {
	payload := rec.Serialize()

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := l.writer.Write(header[:]); err != nil {
		return fmt.Errorf("write wal header: %w", err)
	}
	if _, err := l.writer.Write(payload); err != nil {
		return fmt.Errorf("write wal record: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flush wal: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync wal: %w", err)
	}
	l.size += int64(len(header) + len(payload))
	return nil
}

// Truncate discards all records. Callers must make sure the state they describe is covered
// by a snapshot first.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	l.writer.Reset(l.file)
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync wal: %w", err)
	}
	l.size = 0
	log.Infof("write-ahead log %s truncated", l.path)
	return nil
}

// Size returns the current size of the log in bytes.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Path returns the file path of the log.
func (l *Log) Path() string {
	return l.path
}

// Close flushes and closes the log. Closing twice is a no-op.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	flushErr := l.writer.Flush()
	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	return errors.Join(flushErr, syncErr, closeErr)
}

// --------------------------------------------------------------------------
// Reader (replay side)
// --------------------------------------------------------------------------

// Reader iterates the records of a log file. Decoding stops silently at the first
// incomplete or corrupt record, everything before it is returned. Only I/O errors are
// reported through Err.
type Reader struct {
	path  string
	err   error
	torn  bool
	valid int64
}

// NewReader creates a reader for the log at path. A missing file yields no records.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// All returns a lazy sequence of the records in the log. The sequence is restartable,
// every iteration reads the file from the beginning.
func (r *Reader) All() iter.Seq[command.Record] {
	return func(yield func(command.Record) bool) {
		r.err = nil
		r.torn = false
		r.valid = 0

		f, err := os.Open(r.path)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			r.err = fmt.Errorf("open wal %s: %w", r.path, err)
			return
		}
		defer f.Close()

		br := bufio.NewReader(f)
		var header [4]byte
		for n := 0; ; n++ {
			if _, err := io.ReadFull(br, header[:]); err != nil {
				r.stop(n, err, "incomplete length header")
				return
			}

			size := binary.LittleEndian.Uint32(header[:])
			if size > maxRecordBytes {
				r.stop(n, nil, fmt.Sprintf("record length %d exceeds limit", size))
				return
			}

			payload := make([]byte, size)
			if _, err := io.ReadFull(br, payload); err != nil {
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				r.stop(n, err, "incomplete record")
				return
			}

			var rec command.Record
			if err := rec.Deserialize(payload); err != nil {
				r.stop(n, nil, err.Error())
				return
			}

			r.valid += int64(len(header)) + int64(size)
			if !yield(rec) {
				return
			}
		}
	}
}

// stop records why reading ended. A clean EOF is not reported.
func (r *Reader) stop(n int, err error, reason string) {
	if errors.Is(err, io.EOF) {
		return
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		r.err = fmt.Errorf("read wal %s: %w", r.path, err)
		return
	}
	r.torn = true
	truncatedTailTotal.Inc()
	log.Warningf("stopped reading %s after %d records: %s", r.path, n, reason)
}

// Err returns the I/O error that ended the last iteration, if any.
func (r *Reader) Err() error {
	return r.err
}

// Torn reports whether the last iteration ended at an incomplete or corrupt record.
func (r *Reader) Torn() bool {
	return r.torn
}

// ValidSize returns the number of bytes covered by the records yielded in the last
// iteration. After a torn iteration everything behind this offset is garbage.
func (r *Reader) ValidSize() int64 {
	return r.valid
}

// CutTail truncates the log file at path to size bytes and syncs it. Recovery uses it to
// drop a torn or corrupt tail, so records appended later are not hidden behind it.
func CutTail(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open wal %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return fmt.Errorf("truncate wal %s to %d bytes: %w", path, size, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync wal %s: %w", path, err)
	}
	log.Warningf("cut write-ahead log %s to %d bytes", path, size)
	return f.Close()
}

// ReadAll is a convenience wrapper that collects all records of the log at path.
func ReadAll(path string) ([]command.Record, error) {
	r := NewReader(path)
	var records []command.Record
	for rec := range r.All() {
		records = append(records, rec)
	}
	return records, r.Err()
}
