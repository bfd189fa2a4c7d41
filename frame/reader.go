package frame

import (
	"bytes"
	"errors"
	"io"
	"iter"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/spetersoncode/threadline"
)

var (
	crlfDelimiter = []byte("\r\n\r\n")
	lfDelimiter   = []byte("\n\n")
)

// readSize is the size of a single read from the underlying source.
const readSize = 4096

// Boundary locates a frame delimiter in buffered text.
// Offset is -1 and Len is 0 when no delimiter is present.
type Boundary struct {
	Offset int
	Len    int
}

// Found reports whether a delimiter was located.
func (b Boundary) Found() bool {
	return b.Offset >= 0
}

// FindBoundary returns the earliest delimiter in buf. If both forms begin
// at the same offset, the CRLF-CRLF form is chosen.
func FindBoundary(buf []byte) Boundary {
	rn := bytes.Index(buf, crlfDelimiter)
	n := bytes.Index(buf, lfDelimiter)
	if rn != -1 && (n == -1 || rn <= n) {
		return Boundary{Offset: rn, Len: len(crlfDelimiter)}
	}
	if n != -1 {
		return Boundary{Offset: n, Len: len(lfDelimiter)}
	}
	return Boundary{Offset: -1}
}

// Reader produces frames from a byte stream. It is not safe for concurrent use.
type Reader struct {
	src       io.Reader
	chunk     []byte
	buf       []byte
	pending   []string
	err       error
	discarded int
}

// NewReader returns a Reader decoding r as UTF-8. Invalid byte sequences
// are replaced with U+FFFD.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		src:   transform.NewReader(r, unicode.UTF8.NewDecoder()),
		chunk: make([]byte, readSize),
	}
}

// Next returns the next complete frame. It returns io.EOF once the source is
// exhausted and a *threadline.TransportError if the source fails. After an
// error, every call returns the same error.
func (r *Reader) Next() (string, error) {
	for {
		if len(r.pending) > 0 {
			f := r.pending[0]
			r.pending = r.pending[1:]
			return f, nil
		}
		if r.err != nil {
			return "", r.err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
			r.split()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.discarded = len(r.buf)
				r.buf = nil
				r.err = io.EOF
			} else {
				r.err = &threadline.TransportError{Op: "read", Cause: err}
			}
		}
	}
}

// Frames returns an iterator over the remaining frames. Iteration stops at
// the end of the stream; a read failure is yielded once as the final pair.
func (r *Reader) Frames() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			f, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Discarded returns the number of undelimited bytes dropped at end of stream.
func (r *Reader) Discarded() int {
	return r.discarded
}

// split moves every complete frame from the buffer to the pending queue.
func (r *Reader) split() {
	for {
		b := FindBoundary(r.buf)
		if !b.Found() {
			break
		}
		r.pending = append(r.pending, string(r.buf[:b.Offset]))
		r.buf = r.buf[b.Offset+b.Len:]
	}
	// Compact so the backing array does not grow with consumed frames.
	if len(r.buf) == 0 {
		r.buf = r.buf[:0:0]
	}
}
