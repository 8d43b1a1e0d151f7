package stream

import (
	"errors"
	"fmt"
	"io"
)

// ErrShortRead is returned when the source ends before the number of bytes
// announced at the start of the transfer has been read.
var ErrShortRead = errors.New("source ended before expected size")

// Chunks is a finite, single-pass sequence of byte chunks read from an
// underlying reader. Every emitted chunk is reported once to the callback,
// so the reported lengths sum to the number of bytes handed out.
//
// When a limit is set, exactly limit bytes are produced in chunks of
// min(len(buf), remaining). A source that changes size mid-transfer is not
// supported: a shrinking file yields ErrShortRead and growth past the limit
// is ignored.
type Chunks struct {
	r         io.Reader
	buf       []byte
	limit     int64
	remaining int64
	emitted   int64
	onChunk   func(n int)
	err       error
}

// NewChunks creates a chunk sequence over r using buf as the chunk buffer.
// A negative limit reads until io.EOF.
func NewChunks(r io.Reader, buf []byte, limit int64, onChunk func(n int)) *Chunks {
	return &Chunks{
		r:         r,
		buf:       buf,
		limit:     limit,
		remaining: limit,
		onChunk:   onChunk,
	}
}

// Next returns the next chunk. The slice is only valid until the following
// call. io.EOF marks the end of the sequence; any other error is sticky.
func (c *Chunks) Next() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(c.buf) == 0 {
		c.err = errors.New("stream: zero length chunk buffer")
		return nil, c.err
	}

	var (
		n   int
		err error
	)
	if c.limit >= 0 {
		if c.remaining == 0 {
			c.err = io.EOF
			return nil, io.EOF
		}
		want := len(c.buf)
		if int64(want) > c.remaining {
			want = int(c.remaining)
		}
		n, err = io.ReadFull(c.r, c.buf[:want])
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = fmt.Errorf("%w: read %d of %d bytes", ErrShortRead, c.emitted+int64(n), c.limit)
		}
	} else {
		for n == 0 && err == nil {
			n, err = c.r.Read(c.buf)
		}
		if n > 0 && errors.Is(err, io.EOF) {
			// deliver the data now, report EOF on the next call
			err = nil
		}
	}

	if err != nil {
		c.err = err
		return nil, err
	}

	c.remaining -= int64(n)
	c.emitted += int64(n)
	if c.onChunk != nil {
		c.onChunk(n)
	}
	return c.buf[:n], nil
}

// Emitted returns the total number of bytes handed out so far.
func (c *Chunks) Emitted() int64 {
	return c.emitted
}

// Err returns the first non-EOF error hit while reading the source.
func (c *Chunks) Err() error {
	if errors.Is(c.err, io.EOF) {
		return nil
	}
	return c.err
}

// Reader adapts the sequence to an io.Reader for consumers that pull bytes,
// such as an HTTP request body. The returned reader is not seekable, which
// keeps clients from rewinding and re-reading the source.
func (c *Chunks) Reader() io.Reader {
	return &chunkReader{chunks: c}
}

type chunkReader struct {
	chunks  *Chunks
	pending []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(r.pending) == 0 {
		chunk, err := r.chunks.Next()
		if err != nil {
			return 0, err
		}
		r.pending = chunk
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
