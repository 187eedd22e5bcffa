// internal/protocol/stream.go
package protocol

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

const maxLineSize = 4 << 20

type line struct {
	raw []byte
	err error
}

// Stream is a Channel over newline-delimited JSON, one request or response per line.
type Stream struct {
	w   io.Writer
	wmu sync.Mutex

	lines     chan line
	done      chan struct{}
	closeOnce sync.Once
}

var _ Channel = (*Stream)(nil)

// NewStream reads requests from r and writes responses to w. A reader goroutine runs until r
// returns an error, so r should be closed (or reach EOF) when the stream is no longer used.
func NewStream(r io.Reader, w io.Writer) *Stream {
	s := &Stream{w: w, lines: make(chan line), done: make(chan struct{})}
	go s.pump(r)
	return s
}

func (s *Stream) pump(r io.Reader) {
	defer close(s.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		select {
		case s.lines <- line{raw: append([]byte(nil), raw...)}:
		case <-s.done:
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case s.lines <- line{err: err}:
	case <-s.done:
	}
}

func (s *Stream) Receive(ctx context.Context) (Request, error) {
	select {
	case <-ctx.Done():
		return Request{}, ctx.Err()
	case <-s.done:
		return Request{}, ErrClosed
	case l, ok := <-s.lines:
		if !ok {
			return Request{}, io.EOF
		}
		if l.err != nil {
			return Request{}, l.err
		}
		return Decode(l.raw)
	}
}

func (s *Stream) Send(ctx context.Context, resp Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := wire.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	if _, err := s.w.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// Close stops delivery. It does not close the underlying reader or writer.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
