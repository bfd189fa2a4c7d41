package frame

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/threadline"
)

// chunkReader returns one chunk per Read call.
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func chunked(data []byte, sizes ...int) *chunkReader {
	var chunks [][]byte
	i := 0
	for _, s := range sizes {
		if i >= len(data) {
			break
		}
		end := min(i+s, len(data))
		chunks = append(chunks, data[i:end])
		i = end
	}
	if i < len(data) {
		chunks = append(chunks, data[i:])
	}
	return &chunkReader{chunks: chunks}
}

func collect(t *testing.T, r io.Reader) []string {
	t.Helper()
	var frames []string
	for f, err := range NewReader(r).Frames() {
		require.NoError(t, err)
		frames = append(frames, f)
	}
	return frames
}

func TestFindBoundary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Boundary
	}{
		{"none", "data: x\n", Boundary{Offset: -1}},
		{"lf only", "a\n\nb", Boundary{Offset: 1, Len: 2}},
		{"crlf only", "a\r\n\r\nb", Boundary{Offset: 1, Len: 4}},
		{"lf before crlf", "a\n\nb\r\n\r\n", Boundary{Offset: 1, Len: 2}},
		{"crlf before lf", "ab\r\n\r\nc\n\n", Boundary{Offset: 2, Len: 4}},
		{"lf inside crlf pair is later", "x\r\n\n", Boundary{Offset: 2, Len: 2}},
		{"empty frame", "\n\n", Boundary{Offset: 0, Len: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindBoundary([]byte(tt.in)))
		})
	}
}

func TestReader_InterleavedDelimiters(t *testing.T) {
	in := "data: 1\r\n\r\ndata: 2\n\ndata: 3\r\ndata: 3b\r\n\r\n: comment\n\n"
	frames := collect(t, strings.NewReader(in))
	assert.Equal(t, []string{
		"data: 1",
		"data: 2",
		"data: 3\r\ndata: 3b",
		": comment",
	}, frames)
	for _, f := range frames {
		assert.NotContains(t, f, "\n\n")
		assert.NotContains(t, f, "\r\n\r\n")
	}
}

func TestReader_ChunkBoundaryInvariance(t *testing.T) {
	data := []byte("data: {\"type\":\"TEXT_MESSAGE_CONTENT\",\"delta\":\"héllo wörld ✓\"}\r\n\r\n" +
		"event: x\ndata: a\ndata: b\n\n" +
		"data: [DONE]\n\n")

	want := collect(t, strings.NewReader(string(data)))
	require.Len(t, want, 3)

	splits := [][]int{
		{1},
		{2, 3, 5, 7, 11},
		{31, 1, 1, 1, 1},
		{len(data) - 1},
	}
	for _, s := range splits {
		got := collect(t, chunked(data, s...))
		assert.Equal(t, want, got, "split %v", s)
	}

	// Every single byte delivered separately.
	ones := make([]int, len(data))
	for i := range ones {
		ones[i] = 1
	}
	assert.Equal(t, want, collect(t, chunked(data, ones...)))
	assert.Equal(t, want, collect(t, iotest.OneByteReader(strings.NewReader(string(data)))))
}

func TestReader_SplitMultibyteCharacter(t *testing.T) {
	data := []byte("data: ✓\n\n")
	// ✓ is three bytes starting at offset 6; split inside it.
	frames := collect(t, chunked(data, 7, 1))
	assert.Equal(t, []string{"data: ✓"}, frames)
}

func TestReader_InvalidUTF8Replaced(t *testing.T) {
	frames := collect(t, strings.NewReader("data: \xff\n\n"))
	assert.Equal(t, []string{"data: \uFFFD"}, frames)
}

func TestReader_TrailingDataDiscarded(t *testing.T) {
	r := NewReader(strings.NewReader("data: 1\n\ndata: 2"))

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "data: 1", f)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, len("data: 2"), r.Discarded())

	// Sticky end of stream.
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_TransportError(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader("data: 1\n\ndata: 2"), iotest.ErrReader(boom))
	r := NewReader(src)

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "data: 1", f)

	_, err = r.Next()
	var te *threadline.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "read", te.Op)
}

func TestReader_FramesYieldsErrorOnce(t *testing.T) {
	boom := errors.New("broken pipe")
	r := NewReader(io.MultiReader(strings.NewReader("a\n\n"), iotest.ErrReader(boom)))

	var frames []string
	var errs []error
	for f, err := range r.Frames() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		frames = append(frames, f)
	}
	assert.Equal(t, []string{"a"}, frames)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestReader_Empty(t *testing.T) {
	assert.Empty(t, collect(t, strings.NewReader("")))
}
