package audio

import (
	"io"
	"sync"
)

// WriterSink writes raw PCM frames to w.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(frame)
	return err
}

// Close closes the underlying writer if it is an io.Closer.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type DiscardSink struct{}

func (DiscardSink) Write([]byte) error { return nil }
func (DiscardSink) Close() error       { return nil }
