// Package linesource turns byte streams into newline-delimited messages.
package linesource

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// DefaultMaxLine bounds a single message. Longer lines are split.
const DefaultMaxLine = 256 << 10

// Splitter accumulates chunks of a stream and emits complete lines.
// A trailing "\r" is removed and empty lines are skipped.
type Splitter struct {
	MaxLine int

	buf []byte
}

// Feed appends p and calls emit for every complete line. Lines longer than
// MaxLine are emitted in MaxLine pieces. The slice passed to emit is only
// valid during the call.
func (s *Splitter) Feed(p []byte, emit func([]byte) error) error {
	s.buf = append(s.buf, p...)
	limit := s.limit()

	start := 0
	for {
		i := bytes.IndexByte(s.buf[start:], '\n')
		if i < 0 {
			break
		}
		if err := s.emit(s.buf[start:start+i], emit); err != nil {
			s.compact(start + i + 1)
			return err
		}
		start += i + 1
	}

	for len(s.buf)-start >= limit {
		if err := emit(s.buf[start : start+limit]); err != nil {
			s.compact(start + limit)
			return err
		}
		start += limit
	}

	s.compact(start)
	return nil
}

// Flush emits the pending partial line, if any.
func (s *Splitter) Flush(emit func([]byte) error) error {
	if len(s.buf) == 0 {
		return nil
	}
	line := s.buf
	s.buf = nil
	return s.emit(line, emit)
}

// Pending returns the number of buffered bytes without a newline yet.
func (s *Splitter) Pending() int {
	return len(s.buf)
}

// Reset discards the pending partial line.
func (s *Splitter) Reset() {
	s.buf = s.buf[:0]
}

func (s *Splitter) limit() int {
	if s.MaxLine <= 0 {
		return DefaultMaxLine
	}
	return s.MaxLine
}

func (s *Splitter) emit(line []byte, emit func([]byte) error) error {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	limit := s.limit()
	for len(line) > limit {
		if err := emit(line[:limit]); err != nil {
			return err
		}
		line = line[limit:]
	}
	if len(line) == 0 {
		return nil
	}
	return emit(line)
}

func (s *Splitter) compact(consumed int) {
	n := copy(s.buf, s.buf[consumed:])
	s.buf = s.buf[:n]
}

// Copy reads r until EOF and writes every line to w as one Write call.
// It returns the number of lines written. A final line without a newline
// is written too. ctx is checked between reads.
func Copy(ctx context.Context, w io.Writer, r io.Reader) (int, error) {
	var (
		s     Splitter
		lines int
		chunk = make([]byte, 32<<10)
	)
	emit := func(line []byte) error {
		if _, err := w.Write(line); err != nil {
			return err
		}
		lines++
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return lines, err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			if ferr := s.Feed(chunk[:n], emit); ferr != nil {
				return lines, ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return lines, s.Flush(emit)
		}
		if err != nil {
			return lines, err
		}
	}
}
