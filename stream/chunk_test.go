package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunks_LimitedSizesAndProgress(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 10_000)
	var reported []int

	chunks := NewChunks(bytes.NewReader(data), make([]byte, 4096), int64(len(data)), func(n int) {
		reported = append(reported, n)
	})

	var out bytes.Buffer
	for {
		chunk, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		out.Write(chunk)
	}

	assert.Equal(t, []int{4096, 4096, 1808}, reported)
	assert.Equal(t, data, out.Bytes())
	assert.Equal(t, int64(len(data)), chunks.Emitted())
	assert.NoError(t, chunks.Err())
}

func TestChunks_ShortSource(t *testing.T) {
	chunks := NewChunks(strings.NewReader("abc"), make([]byte, 2), 10, nil)

	chunk, err := chunks.Next()
	require.NoError(t, err)
	assert.Equal(t, "ab", string(chunk))

	_, err = chunks.Next()
	require.ErrorIs(t, err, ErrShortRead)

	// sticky
	_, err = chunks.Next()
	require.ErrorIs(t, err, ErrShortRead)
	assert.ErrorIs(t, chunks.Err(), ErrShortRead)
}

func TestChunks_IgnoresGrowthPastLimit(t *testing.T) {
	chunks := NewChunks(strings.NewReader("abcdef"), make([]byte, 4), 3, nil)

	chunk, err := chunks.Next()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(chunk))

	_, err = chunks.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestChunks_ZeroLength(t *testing.T) {
	called := false
	chunks := NewChunks(strings.NewReader(""), make([]byte, 4), 0, func(int) { called = true })

	_, err := chunks.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, called)
}

func TestChunks_ReaderUnbounded(t *testing.T) {
	var total int
	chunks := NewChunks(strings.NewReader("hello world"), make([]byte, 3), -1, func(n int) {
		total += n
	})

	got, err := io.ReadAll(chunks.Reader())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.Equal(t, 11, total)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestChunks_ReaderPropagatesSourceError(t *testing.T) {
	chunks := NewChunks(failingReader{}, make([]byte, 8), 100, nil)

	_, err := io.ReadAll(chunks.Reader())
	require.Error(t, err)
	assert.Contains(t, chunks.Err().Error(), "disk on fire")
}
