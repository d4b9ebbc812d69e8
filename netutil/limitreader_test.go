package netutil

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitedReaderUnderLimit(t *testing.T) {
	r := NewLimitedReader(strings.NewReader("hello"), 100)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), r.BytesRead())
}

func TestLimitedReaderExactLimit(t *testing.T) {
	// A source of exactly the limit must succeed; the reader probes one
	// byte past the boundary to distinguish "exact" from "larger".
	r := NewLimitedReader(strings.NewReader("12345"), 5)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))
}

func TestLimitedReaderOverLimit(t *testing.T) {
	r := NewLimitedReader(strings.NewReader("123456"), 5)
	_, err := io.ReadAll(r)
	require.Error(t, err)
	assert.True(t, IsSizeLimitExceeded(err))

	var sizeErr *SizeLimitExceededError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int64(5), sizeErr.Limit)
}

func TestLimitedReaderLargeSource(t *testing.T) {
	r := NewLimitedReader(bytes.NewReader(make([]byte, 1<<20)), 1024)
	_, err := io.ReadAll(r)
	assert.True(t, IsSizeLimitExceeded(err))
}

func TestIsSizeLimitExceeded(t *testing.T) {
	assert.False(t, IsSizeLimitExceeded(nil))
	assert.False(t, IsSizeLimitExceeded(io.EOF))
	assert.True(t, IsSizeLimitExceeded(&SizeLimitExceededError{Limit: 1, Read: 2}))

	wrapped := errors.Join(errors.New("download failed"), &SizeLimitExceededError{Limit: 1, Read: 2})
	assert.True(t, IsSizeLimitExceeded(wrapped))
}
