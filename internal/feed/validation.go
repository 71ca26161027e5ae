package feed

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	securitynet "tldrbot/internal/security/netutil"
)

var (
	ErrInvalidURL = errors.New("invalid feed URL")
	ErrFetch      = errors.New("fetch failed")
	ErrParse      = errors.New("parse failed")
)

// ValidateURL checks scheme and destination before any request is made.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: must use HTTP or HTTPS", ErrInvalidURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if err := securitynet.CheckHost(u.Hostname()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return u, nil
}

// NormalizeLink drops the fragment so the link can serve as a dedup key.
func NormalizeLink(link string) string {
	if i := strings.IndexByte(link, '#'); i >= 0 {
		return link[:i]
	}
	return link
}
