package network

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single encoded message, newline included
const MaxMessageSize = 64 * 1024

// ErrMalformed marks a line that could not be decoded into a message. The
// stream stays usable after it.
var ErrMalformed = errors.New("malformed message")

// ErrTooLong is wrapped in ErrMalformed when a line exceeds MaxMessageSize
var ErrTooLong = errors.New("message too long")

// Reader reads newline-delimited messages
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a message reader over r
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, MaxMessageSize)}
}

// ReadMessage returns the next message. Blank lines are skipped and an
// oversized line is discarded up to its newline. io.EOF is returned when
// the stream ends cleanly.
func (r *Reader) ReadMessage() (*Message, error) {
	for {
		line, err := r.br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if err := r.skipLine(); err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrTooLong)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return nil, io.EOF
			}
			continue
		}
		msg, decodeErr := FromJSON(append([]byte(nil), line...))
		if decodeErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, decodeErr)
		}
		return msg, nil
	}
}

func (r *Reader) skipLine() error {
	for {
		_, err := r.br.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// WriteMessage encodes msg followed by a newline
func WriteMessage(w io.Writer, msg *Message) error {
	data, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
