package netutil

import (
	"errors"
	"fmt"
	"io"
)

// LimitedReader reads at most Limit bytes and fails, rather than
// truncating, when the source has more.
type LimitedReader struct {
	src       io.Reader
	remaining int64
	limit     int64
	read      int64
}

// NewLimitedReader wraps r with a hard size limit.
func NewLimitedReader(r io.Reader, limit int64) *LimitedReader {
	return &LimitedReader{src: r, remaining: limit, limit: limit}
}

// Read implements io.Reader.
func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, &SizeLimitExceededError{Limit: l.limit, Read: l.read}
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.src.Read(p)
	l.remaining -= int64(n)
	l.read += int64(n)

	if l.remaining == 0 && err == nil {
		// Peek one byte: hitting the limit exactly is fine only at EOF.
		var probe [1]byte
		extra, probeErr := l.src.Read(probe[:])
		if extra > 0 {
			return n, &SizeLimitExceededError{Limit: l.limit, Read: l.read + 1}
		}
		if probeErr != nil && probeErr != io.EOF {
			return n, probeErr
		}
	}
	return n, err
}

// BytesRead reports how many bytes have been consumed so far.
func (l *LimitedReader) BytesRead() int64 { return l.read }

// SizeLimitExceededError reports a source larger than the allowed limit.
type SizeLimitExceededError struct {
	Limit int64
	Read  int64
}

func (e *SizeLimitExceededError) Error() string {
	return fmt.Sprintf("size limit exceeded: read %d bytes, limit is %d bytes", e.Read, e.Limit)
}

// IsSizeLimitExceeded reports whether err is a size-limit failure.
func IsSizeLimitExceeded(err error) bool {
	var target *SizeLimitExceededError
	return errors.As(err, &target)
}
