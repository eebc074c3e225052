package service

import (
	"errors"
	"strings"
)

// UpstreamDomain is the fixed domain family every request is forwarded to.
const UpstreamDomain = "roblox.com"

// dispatchPrefix is the routing prefix of the serverless entrypoint.
var dispatchPrefix = []string{"api", "proxy"}

// ErrInvalidURLFormat is returned when the path does not name a subdomain
// followed by at least one path segment.
var ErrInvalidURLFormat = errors.New("invalid proxy URL format")

// Target is the upstream location derived from an inbound path.
type Target struct {
	Subdomain string
	Path      string
	RawQuery  string
}

// URL returns https://{subdomain}.roblox.com/{path}[?query].
func (t Target) URL() string {
	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(t.Subdomain)
	b.WriteByte('.')
	b.WriteString(UpstreamDomain)
	b.WriteByte('/')
	b.WriteString(t.Path)
	if t.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(t.RawQuery)
	}
	return b.String()
}

// Host returns the upstream host name.
func (t Target) Host() string {
	return t.Subdomain + "." + UpstreamDomain
}

// DeriveTarget extracts the upstream target from an escaped request path.
//
// Empty segments are ignored. The first strip segments are dropped; when strip
// is zero and detectPrefix is set, a leading "api/proxy" is dropped instead.
// The next segment is the subdomain and the rest form the upstream path.
func DeriveTarget(path, rawQuery string, strip int, detectPrefix bool) (Target, error) {
	segments := splitSegments(path)

	switch {
	case strip > 0:
		segments = segments[min(strip, len(segments)):]
	case detectPrefix && hasPrefix(segments, dispatchPrefix):
		segments = segments[len(dispatchPrefix):]
	}

	if len(segments) < 2 || !validSubdomain(segments[0]) {
		return Target{}, ErrInvalidURLFormat
	}

	return Target{
		Subdomain: segments[0],
		Path:      strings.Join(segments[1:], "/"),
		RawQuery:  rawQuery,
	}, nil
}

func splitSegments(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

func hasPrefix(segments, prefix []string) bool {
	if len(segments) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if segments[i] != p {
			return false
		}
	}
	return true
}

// validSubdomain allows only host-name characters so the segment cannot
// change the authority of the upstream URL.
func validSubdomain(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '.', r == '_':
		default:
			return false
		}
	}
	return !strings.HasPrefix(s, ".") && !strings.Contains(s, "..")
}
