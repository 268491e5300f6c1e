package tenancy

import (
	"fmt"
	"strings"

	"github.com/cidadeplus/backend/internal/models"
)

// SignalKind is a request input that can name a city.
type SignalKind string

const (
	SignalHeader SignalKind = "header"
	SignalPath   SignalKind = "path"
	SignalDomain SignalKind = "domain"
)

// DefaultPrecedence is header override, then path segment, then host domain.
var DefaultPrecedence = []SignalKind{SignalHeader, SignalPath, SignalDomain}

// source maps a signal to the resolution source it produces.
func (k SignalKind) source() Source {
	switch k {
	case SignalHeader:
		return SourceHeaderOverride
	case SignalPath:
		return SourcePathSegment
	default:
		return SourceDomain
	}
}

// ParsePrecedence validates a precedence list such as ["header", "path", "domain"].
func ParsePrecedence(names []string) ([]SignalKind, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("empty precedence")
	}
	seen := make(map[SignalKind]bool, len(names))
	out := make([]SignalKind, 0, len(names))
	for _, n := range names {
		k := SignalKind(strings.ToLower(strings.TrimSpace(n)))
		switch k {
		case SignalHeader, SignalPath, SignalDomain:
		default:
			return nil, fmt.Errorf("unknown signal %q", n)
		}
		if seen[k] {
			return nil, fmt.Errorf("duplicate signal %q", n)
		}
		seen[k] = true
		out = append(out, k)
	}
	return out, nil
}

// Signals are the raw tenant inputs of one request.
type Signals struct {
	Header string // explicit override header (city slug)
	Path   string // city slug path segment
	Host   string // Host header

	RequestID string
	TraceID   string
}

func (s Signals) value(k SignalKind) string {
	switch k {
	case SignalHeader:
		return NormalizeSlug(s.Header)
	case SignalPath:
		return NormalizeSlug(s.Path)
	case SignalDomain:
		return NormalizeDomain(s.Host)
	}
	return ""
}

// mismatchType names the incident for two disagreeing signals, independent of order.
func mismatchType(a, b SignalKind) string {
	has := func(k SignalKind) bool { return a == k || b == k }
	switch {
	case has(SignalHeader) && has(SignalPath):
		return models.IncidentHeaderPathMismatch
	case has(SignalHeader) && has(SignalDomain):
		return models.IncidentHeaderDomainMismatch
	default:
		return models.IncidentPathDomainMismatch
	}
}
