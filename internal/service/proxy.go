// Package service implements the core proxy forwarding logic.
package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rproxy-go/internal/metrics"
	"rproxy-go/internal/model"
)

// Response bodies for locally generated errors.
const (
	MsgInvalidURL   = "URL format invalid."
	MsgUnauthorized = "Missing or invalid PROXYKEY header."
	MsgTimeout      = "Proxy request timed out."
	MsgConnect      = "Proxy failed to connect. Please try again."
)

// SecretHeader carries the shared secret.
const SecretHeader = "proxykey"

const defaultTimeout = 30 * time.Second

// Upstream performs a single upstream HTTP call.
type Upstream interface {
	DoStream(ctx context.Context, method, url string, header http.Header, body io.Reader) (*model.ProxyResponse, error)
}

// Forwarder runs the per-request pipeline: preflight, authorization, target
// derivation, header sanitization, forwarding with retry, and response assembly.
// It holds no per-request state and is safe for concurrent use.
type Forwarder struct {
	upstream Upstream
	cfg      model.HandlerConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewForwarder creates a Forwarder.
// The metrics parameter is optional; pass nil to disable outcome recording.
func NewForwarder(up Upstream, cfg model.HandlerConfig, logger *slog.Logger, m *metrics.Metrics) *Forwarder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Forwarder{
		upstream: up,
		cfg:      cfg,
		logger:   logger.With("component", "forwarder"),
		metrics:  m,
	}
}

// Handle processes one inbound request and always returns a response.
// The caller is responsible for closing the response body.
func (f *Forwarder) Handle(pr *model.ProxyRequest) *model.ProxyResponse {
	// Browsers never attach the secret to a preflight, so it skips the auth check.
	if strings.EqualFold(pr.Method, http.MethodOptions) {
		f.countOutcome("preflight")
		return &model.ProxyResponse{
			StatusCode: http.StatusNoContent,
			Header:     f.cfg.CORS.Headers(nil, pr.Header),
			Body:       http.NoBody,
		}
	}

	if !f.authorized(pr.Header) {
		f.countOutcome("unauthorized")
		return f.textResponse(pr, http.StatusProxyAuthRequired, MsgUnauthorized)
	}

	target, err := DeriveTarget(pr.Path, pr.RawQuery, f.cfg.StripPrefixSegments, f.cfg.DetectDispatchPrefix)
	if err != nil {
		f.logger.Debug("rejecting request", "path", pr.Path, "err", err)
		f.countOutcome("invalid_url")
		return f.textResponse(pr, http.StatusBadRequest, MsgInvalidURL)
	}

	header := SanitizeRequestHeaders(pr.Header)

	body, err := readBody(pr)
	if err != nil {
		f.logger.Error("reading request body", "err", err, "host", target.Host())
		f.countOutcome("failed")
		return f.textResponse(pr, http.StatusInternalServerError, MsgConnect)
	}

	f.logger.Debug("forwarding request",
		"method", pr.Method,
		"host", target.Host(),
		"path", target.Path,
	)

	ctx := pr.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := f.forward(ctx, pr.Method, target, header, body)
	if err != nil {
		f.logger.Error("proxy request failed", "err", err, "host", target.Host())
		if isTimeout(err) {
			f.countOutcome("timeout")
			return f.textResponse(pr, http.StatusInternalServerError, MsgTimeout)
		}
		f.countOutcome("failed")
		return f.textResponse(pr, http.StatusInternalServerError, MsgConnect)
	}

	f.countOutcome("ok")
	resp.Header = f.cfg.CORS.Headers(filterResponseHeaders(resp.Header), pr.Header)
	return resp
}

func (f *Forwarder) authorized(h http.Header) bool {
	if f.cfg.SharedSecret == "" {
		return true
	}
	// Repeated proxykey headers are compared as one comma-joined value.
	got := strings.Join(h.Values(SecretHeader), ", ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(f.cfg.SharedSecret)) == 1
}

func (f *Forwarder) textResponse(pr *model.ProxyRequest, status int, msg string) *model.ProxyResponse {
	base := http.Header{"Content-Type": {"text/plain; charset=utf-8"}}
	return &model.ProxyResponse{
		StatusCode: status,
		Header:     f.cfg.CORS.Headers(base, pr.Header),
		Body:       io.NopCloser(strings.NewReader(msg)),
	}
}

// readBody buffers the request body so every attempt can resend it.
// GET and HEAD never carry a body upstream.
func readBody(pr *model.ProxyRequest) ([]byte, error) {
	if pr.Method == http.MethodGet || pr.Method == http.MethodHead || pr.Body == nil {
		return nil, nil
	}
	b, err := io.ReadAll(pr.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return b, nil
}

func (f *Forwarder) countOutcome(outcome string) {
	if f.metrics != nil {
		f.metrics.Outcomes.WithLabelValues(outcome).Inc()
	}
}

func (f *Forwarder) countAttempt(outcome string) {
	if f.metrics != nil {
		f.metrics.UpstreamAttempts.WithLabelValues(outcome).Inc()
	}
}
