// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"time"

	"rproxy-go/internal/cors"
)

// ProxyRequest represents a client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     io.ReadCloser
}

// ProxyResponse represents the outbound response, either relayed from the
// upstream or synthesized locally.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// HandlerConfig is the read-only configuration of the forwarding pipeline.
// It is safe to share across concurrent requests.
type HandlerConfig struct {
	// Timeout bounds a single upstream attempt.
	Timeout time.Duration
	// MaxRetries is the total number of upstream attempts. At least one
	// attempt is always made.
	MaxRetries int
	// SharedSecret enables the proxykey check when non-empty.
	SharedSecret string
	// StripPrefixSegments drops leading path segments before the subdomain.
	StripPrefixSegments int
	// DetectDispatchPrefix drops a leading "api/proxy" when
	// StripPrefixSegments is zero.
	DetectDispatchPrefix bool

	CORS cors.Policy
}
