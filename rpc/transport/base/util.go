package base

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
)

// MaxLineBytes bounds a single request or response line.
const MaxLineBytes = 4 << 20

// ErrLineTooLong is returned when a peer sends a line longer than MaxLineBytes.
var ErrLineTooLong = fmt.Errorf("line exceeds %d bytes", MaxLineBytes)

var newline = []byte{'\n'}

// WriteLine writes data followed by a newline. data must not contain a newline.
func WriteLine(w io.Writer, data []byte) error {
	b := net.Buffers{data, newline}
	_, err := b.WriteTo(w)
	return err
}

// ReadLine reads one newline terminated line and strips the terminator (and a
// preceding carriage return). A connection closed before the first byte yields
// io.EOF, one closed in the middle of a line io.ErrUnexpectedEOF.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > MaxLineBytes {
			return nil, ErrLineTooLong
		}
		line = append(line, chunk...)

		switch {
		case err == nil:
			return bytes.TrimRight(line, "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}
