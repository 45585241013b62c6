package stream

import (
	"context"
	"io"
	"sync"
)

// DefaultReadBufferSize is the read size used by ReaderSource.
const DefaultReadBufferSize = 32 * 1024

// ChunkSource yields byte chunks in arrival order. Next returns io.EOF once the
// source is exhausted. Close releases whatever the transport holds and may be
// called at any time.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// ReaderSource reads chunks from an io.ReadCloser such as an HTTP response body.
type ReaderSource struct {
	body io.ReadCloser
	buf  []byte

	closeOnce sync.Once
	closeErr  error
}

func NewReaderSource(body io.ReadCloser, bufferSize int) *ReaderSource {
	if bufferSize <= 0 {
		bufferSize = DefaultReadBufferSize
	}
	return &ReaderSource{
		body: body,
		buf:  make([]byte, bufferSize),
	}
}

func (s *ReaderSource) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.body.Read(s.buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, s.buf[:n])
			return chunk, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *ReaderSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// SliceSource replays a fixed list of chunks, then returns Err (io.EOF if nil).
type SliceSource struct {
	Chunks [][]byte
	Err    error

	pos    int
	closed bool
}

// NewSliceSource builds a SliceSource from string chunks.
func NewSliceSource(chunks ...string) *SliceSource {
	s := &SliceSource{Chunks: make([][]byte, len(chunks))}
	for i, c := range chunks {
		s.Chunks[i] = []byte(c)
	}
	return s
}

func (s *SliceSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if s.pos < len(s.Chunks) {
		chunk := s.Chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return nil, io.EOF
}

func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *SliceSource) Closed() bool {
	return s.closed
}
