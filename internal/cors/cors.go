// Package cors builds the permissive cross-origin response headers the proxy
// layers on top of every response it returns.
package cors

import (
	"net/http"
	"strconv"
	"strings"
)

// Defaults applied when a policy field is left empty.
const (
	DefaultAllowMethods  = "GET,HEAD,POST,PUT,PATCH,DELETE,OPTIONS"
	DefaultAllowHeaders  = "Content-Type, Authorization, PROXYKEY, proxykey"
	DefaultExposeHeaders = "Content-Type, Content-Length, ETag"
	DefaultMaxAgeSeconds = 600
)

const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderMaxAge           = "Access-Control-Max-Age"
	HeaderExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderRequestHeaders   = "Access-Control-Request-Headers"
	HeaderVary             = "Vary"
	HeaderOrigin           = "Origin"
)

const wildcard = "*"

// Policy describes the CORS headers attached to responses.
type Policy struct {
	// AllowOrigin, when empty, reflects the request Origin or falls back to "*".
	AllowOrigin      string
	AllowCredentials bool
	AllowMethods     string
	// AllowHeaders is used unless the request carries
	// Access-Control-Request-Headers, which is mirrored back instead.
	AllowHeaders  string
	ExposeHeaders string
	MaxAgeSeconds int
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		AllowMethods:  DefaultAllowMethods,
		AllowHeaders:  DefaultAllowHeaders,
		ExposeHeaders: DefaultExposeHeaders,
		MaxAgeSeconds: DefaultMaxAgeSeconds,
	}
}

// Headers returns a copy of base with the CORS fields set according to the
// policy and the inbound request headers. base is never modified and may be nil.
func (p Policy) Headers(base, req http.Header) http.Header {
	h := base.Clone()
	if h == nil {
		h = make(http.Header)
	}

	origin := p.ResolveOrigin(req)
	h.Set(HeaderAllowOrigin, origin)
	if origin != wildcard {
		h.Set(HeaderVary, MergeVary(strings.Join(h.Values(HeaderVary), ", "), HeaderOrigin))
	}

	h.Set(HeaderAllowMethods, p.AllowMethods)
	h.Set(HeaderAllowHeaders, p.resolveAllowHeaders(req))
	h.Set(HeaderMaxAge, strconv.Itoa(p.MaxAgeSeconds))
	h.Set(HeaderExposeHeaders, p.ExposeHeaders)
	h.Set(HeaderAllowCredentials, strconv.FormatBool(p.AllowCredentials))

	return h
}

// ResolveOrigin returns the Access-Control-Allow-Origin value for a request:
// the configured origin, else the request Origin, else "*".
func (p Policy) ResolveOrigin(req http.Header) string {
	if p.AllowOrigin != "" {
		return p.AllowOrigin
	}
	if o := req.Get(HeaderOrigin); o != "" {
		return o
	}
	return wildcard
}

func (p Policy) resolveAllowHeaders(req http.Header) string {
	if requested := req.Get(HeaderRequestHeaders); requested != "" {
		return requested
	}
	return p.AllowHeaders
}

// MergeVary adds token to a comma-separated Vary value unless it is already
// listed (case-insensitively) or the value is "*".
func MergeVary(existing, token string) string {
	if strings.TrimSpace(existing) == "" {
		return token
	}
	for _, t := range strings.Split(existing, ",") {
		t = strings.TrimSpace(t)
		if t == wildcard || strings.EqualFold(t, token) {
			return existing
		}
	}
	return existing + ", " + token
}
