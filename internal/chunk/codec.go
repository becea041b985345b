// Package chunk splits byte streams into bounded chunks and joins ordered
// chunks back into a byte stream.
package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"chunkvault/internal/models"
)

// DefaultSize is the default maximum chunk payload length (256 KiB).
const DefaultSize = 262144

// IntegrityError reports a chunk sequence that cannot reconstruct a blob:
// a gap, an out-of-order index, or a byte count that disagrees with metadata.
type IntegrityError struct {
	BlobID string
	Reason string
}

func (e *IntegrityError) Error() string {
	if e == nil {
		return ""
	}
	if e.BlobID != "" {
		return fmt.Sprintf("integrity error in blob %s: %s", e.BlobID, e.Reason)
	}
	return "integrity error: " + e.Reason
}

// IsIntegrityError reports whether err wraps an *IntegrityError.
func IsIntegrityError(err error) bool {
	var target *IntegrityError
	return errors.As(err, &target)
}

// Splitter yields successive chunks read from an underlying reader. It works
// like bufio.Scanner: call Scan until it returns false, then check Err.
//
// The slice returned by Bytes is only valid until the next call to Scan.
type Splitter struct {
	r     io.Reader
	buf   []byte
	cur   []byte
	index int
	done  bool
	err   error
}

// NewSplitter returns a Splitter producing chunks of at most size bytes.
func NewSplitter(r io.Reader, size int) (*Splitter, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if size < 1 {
		return nil, fmt.Errorf("chunk size must be >= 1, got %d", size)
	}
	return &Splitter{r: r, buf: make([]byte, size), index: -1}, nil
}

// Scan advances to the next chunk. It returns false at end of input or on
// the first read error.
func (s *Splitter) Scan() bool {
	if s.done {
		s.cur = nil
		return false
	}
	n, err := io.ReadFull(s.r, s.buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.done = true
		s.cur = nil
		return false
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
	default:
		s.done = true
		s.err = err
		s.cur = nil
		return false
	}
	s.cur = s.buf[:n]
	s.index++
	return true
}

// Bytes returns the current chunk payload.
func (s *Splitter) Bytes() []byte {
	return s.cur
}

// Index returns the zero-based position of the current chunk.
func (s *Splitter) Index() int {
	return s.index
}

// Err returns the first non-EOF read error.
func (s *Splitter) Err() error {
	return s.err
}

// Split reads all of r and returns its chunks. Intended for small payloads
// and tests; streaming callers use Splitter directly.
func Split(r io.Reader, size int) ([]models.Chunk, error) {
	sp, err := NewSplitter(r, size)
	if err != nil {
		return nil, err
	}
	chunks := []models.Chunk{}
	for sp.Scan() {
		data := make([]byte, len(sp.Bytes()))
		copy(data, sp.Bytes())
		chunks = append(chunks, models.Chunk{Index: sp.Index(), Data: data})
	}
	if err := sp.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// Join concatenates chunks in the order supplied. Indices must run 0,1,2...
// with no gaps; chunks are never reordered.
func Join(chunks []models.Chunk) (io.Reader, error) {
	seq := Sequencer{}
	readers := make([]io.Reader, 0, len(chunks))
	for _, c := range chunks {
		if err := seq.Check(c); err != nil {
			return nil, err
		}
		readers = append(readers, bytes.NewReader(c.Data))
	}
	return io.MultiReader(readers...), nil
}

// Sequencer checks that chunks arrive with contiguous ascending indices.
// The zero value expects index 0 first.
type Sequencer struct {
	BlobID string
	next   int
	bytes  int64
}

// Check validates c against the expected next index and records it.
func (s *Sequencer) Check(c models.Chunk) error {
	if c.Index != s.next {
		if c.Index < s.next {
			return &IntegrityError{BlobID: s.BlobID, Reason: fmt.Sprintf("chunk %d out of order, expected %d", c.Index, s.next)}
		}
		return &IntegrityError{BlobID: s.BlobID, Reason: fmt.Sprintf("missing chunk %d", s.next)}
	}
	s.next++
	s.bytes += int64(len(c.Data))
	return nil
}

// Count returns the number of chunks accepted so far.
func (s *Sequencer) Count() int {
	return s.next
}

// Bytes returns the total payload length accepted so far.
func (s *Sequencer) Bytes() int64 {
	return s.bytes
}
