package backend

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

const maxEventSize = 1024 * 1024

// Stream reads progress frames from a server-sent event stream.
// Next is not safe for concurrent use; Close may be called from any goroutine.
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps an event-stream body.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, reader: bufio.NewReaderSize(body, 64*1024)}
}

// Next blocks until the next event and decodes its data as a frame. It
// returns io.EOF when the stream ends. An event whose data is not a frame,
// or is larger than maxEventSize, yields an error wrapping
// ErrMalformedFrame; the stream stays usable.
func (s *Stream) Next() (ProgressFrame, error) {
	var (
		data     []string
		size     int
		oversize bool
	)
	for {
		line, tooLong, err := s.readLine()
		if errors.Is(err, io.EOF) {
			switch {
			case oversize:
				return ProgressFrame{}, errOversized()
			case len(data) > 0:
				return decodeFrame(strings.Join(data, "\n"))
			}
			return ProgressFrame{}, io.EOF
		}
		if err != nil {
			return ProgressFrame{}, err
		}

		if tooLong {
			oversize = true
			continue
		}
		if line == "" {
			if oversize {
				return ProgressFrame{}, errOversized()
			}
			if len(data) == 0 {
				continue
			}
			return decodeFrame(strings.Join(data, "\n"))
		}
		if strings.HasPrefix(line, ":") || oversize {
			continue
		}

		// event, id and retry fields carry nothing a frame needs.
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		if size += len(value); size > maxEventSize {
			oversize = true
			data = nil
			continue
		}
		data = append(data, value)
	}
}

// readLine returns the next line without its terminator. A line longer
// than maxEventSize is consumed but not kept, and reported as tooLong.
func (s *Stream) readLine() (string, bool, error) {
	var (
		buf     []byte
		tooLong bool
	)
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxEventSize+2 {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && (len(buf) > 0 || tooLong):
			// Last line without a terminator; the next call reports io.EOF.
		case err != nil:
			return "", false, err
		}
		line := strings.TrimSuffix(strings.TrimSuffix(string(buf), "\n"), "\r")
		return line, tooLong, nil
	}
}

func errOversized() error {
	return fmt.Errorf("%w: event larger than %d bytes", ErrMalformedFrame, maxEventSize)
}

// Close closes the underlying body, unblocking a pending Next. It is idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

func decodeFrame(data string) (ProgressFrame, error) {
	if !strings.HasPrefix(strings.TrimSpace(data), "{") {
		return ProgressFrame{}, fmt.Errorf("%w: not a JSON object", ErrMalformedFrame)
	}
	var frame ProgressFrame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return ProgressFrame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return frame, nil
}
