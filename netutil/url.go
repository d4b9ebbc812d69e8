package netutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Hostname extracts the lowercased hostname of a URL.
func Hostname(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("URL %q has no host", StripCredentials(rawURL))
	}
	return strings.ToLower(host), nil
}

// StripCredentials removes user:password@ from a URL so it is safe to
// log. Unparseable input is returned unchanged.
func StripCredentials(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.User = nil
	return parsed.String()
}

// NormalizeURL returns a canonical form suitable for cache keys:
// lowercased scheme and host, default ports and credentials removed,
// trailing slash trimmed, query sorted.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.User = nil
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	host, port := parsed.Hostname(), parsed.Port()
	if (parsed.Scheme == "https" && port == "443") || (parsed.Scheme == "http" && port == "80") {
		parsed.Host = host
	}
	if parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}
	if parsed.RawQuery != "" {
		parsed.RawQuery = parsed.Query().Encode()
	}
	return parsed.String()
}
