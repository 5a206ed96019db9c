package relay

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

// ValidateVideoURL accepts absolute http(s) URLs whose host is one of
// allowed or a subdomain of one. An empty allow list accepts any host.
func ValidateVideoURL(raw string, allowed []string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVideoURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidVideoURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidVideoURL)
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if host == a || strings.HasSuffix(host, "."+a) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q not allowed", ErrInvalidVideoURL, host)
}

func ValidateSeek(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSeek, seconds)
	}
	return nil
}
