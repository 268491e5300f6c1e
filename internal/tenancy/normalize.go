package tenancy

import (
	"net"
	"strings"
)

// NormalizeSlug trims and lower-cases a city slug.
func NormalizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeDomain reduces a host or URL to the form stored in city_domains:
// lower-cased, no scheme, no path, no trailing slash or dot, no port.
func NormalizeDomain(s string) string {
	d := strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if host, _, err := net.SplitHostPort(d); err == nil {
		d = host
	}
	d = strings.TrimPrefix(d, "[")
	d = strings.TrimSuffix(d, "]")
	return strings.TrimSuffix(d, ".")
}
