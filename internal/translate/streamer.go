package translate

import (
	"io"
	"sync"

	"codeshift/internal/filetree"
)

// Delimiter separates the live engine output from the reconstructed tree.
const Delimiter = "\n\n\n____[JSON]____\n\n\n"

type flusher interface {
	Flush()
}

// Streamer is the single append-only response of a run. Every write is
// flushed through when the sink supports it. Once the sink fails, the
// streamer keeps returning that error and writes nothing more.
type Streamer struct {
	mu      sync.Mutex
	w       io.Writer
	err     error
	written int64
	closed  bool
}

func NewStreamer(w io.Writer) *Streamer {
	return &Streamer{w: w}
}

func (s *Streamer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(p)
}

func (s *Streamer) write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.closed {
		s.err = io.ErrClosedPipe
		return 0, s.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := s.w.Write(p)
	s.written += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.err = err
		return n, err
	}
	if f, ok := s.w.(flusher); ok {
		f.Flush()
	}
	return n, nil
}

// Finish appends the delimiter and the JSON encoding of tree, then closes
// the sink if it is an io.Closer.
func (s *Streamer) Finish(tree *filetree.Node) error {
	raw, err := tree.MarshalJSON()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.write([]byte(Delimiter)); err != nil {
		return err
	}
	if _, err := s.write(raw); err != nil {
		return err
	}
	return s.close()
}

// Close closes the sink without writing the tree. It is a no-op after
// Finish.
func (s *Streamer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close()
}

func (s *Streamer) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			if s.err == nil {
				s.err = err
			}
			return err
		}
	}
	return nil
}

// Err returns the sticky sink error, if any.
func (s *Streamer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Written is the number of bytes accepted by the sink.
func (s *Streamer) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}
