// Package values holds small immutable value types shared across the
// extension layers.
package values

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Digest is a content hash with its algorithm.
type Digest struct {
	algorithm string
	value     string
}

// NewDigest creates a digest from an algorithm name and hex value.
func NewDigest(algorithm, hexValue string) (Digest, error) {
	switch algorithm {
	case "sha256", "sha512":
	default:
		return Digest{}, fmt.Errorf("unsupported digest algorithm: %s", algorithm)
	}
	hexValue = strings.ToLower(hexValue)
	if _, err := hex.DecodeString(hexValue); err != nil {
		return Digest{}, fmt.Errorf("invalid digest hex: %w", err)
	}
	return Digest{algorithm: algorithm, value: hexValue}, nil
}

// ParseDigest parses "sha256:abc..." or bare hex, which is taken to be
// sha256.
func ParseDigest(s string) (Digest, error) {
	if algorithm, value, ok := strings.Cut(s, ":"); ok {
		return NewDigest(algorithm, value)
	}
	return NewDigest("sha256", s)
}

// String returns the canonical "algorithm:hex" form.
func (d Digest) String() string {
	return fmt.Sprintf("%s:%s", d.algorithm, d.value)
}

// Algorithm returns the hash algorithm name.
func (d Digest) Algorithm() string { return d.algorithm }

// Value returns the hex-encoded hash.
func (d Digest) Value() string { return d.value }

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool { return d.algorithm == "" && d.value == "" }

// Equals compares algorithm and value.
func (d Digest) Equals(other Digest) bool {
	return d.algorithm == other.algorithm && d.value == other.value
}

// DigestReader hashes a stream with the named algorithm.
func DigestReader(algorithm string, r io.Reader) (Digest, error) {
	var h hash.Hash
	switch algorithm {
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		return Digest{}, fmt.Errorf("unsupported digest algorithm: %s", algorithm)
	}
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, fmt.Errorf("hash content: %w", err)
	}
	return Digest{algorithm: algorithm, value: hex.EncodeToString(h.Sum(nil))}, nil
}

// SHA256Reader hashes a stream with sha256.
func SHA256Reader(r io.Reader) (Digest, error) {
	return DigestReader("sha256", r)
}

// SHA256File hashes a file's contents with sha256.
func SHA256File(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("open for digest: %w", err)
	}
	defer func() { _ = f.Close() }()
	return SHA256Reader(f)
}
