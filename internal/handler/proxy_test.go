package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"rproxy-go/internal/cors"
	"rproxy-go/internal/model"
	"rproxy-go/internal/service"
)

// stubUpstream answers every call with the same response or error and records
// what it was asked to fetch.
type stubUpstream struct {
	mu     sync.Mutex
	urls   []string
	bodies []string
	status int
	header http.Header
	body   string
	err    error
}

func (s *stubUpstream) DoStream(_ context.Context, _ string, url string, _ http.Header, body io.Reader) (*model.ProxyResponse, error) {
	var b []byte
	if body != nil {
		b, _ = io.ReadAll(body)
	}
	s.mu.Lock()
	s.urls = append(s.urls, url)
	s.bodies = append(s.bodies, string(b))
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	header := s.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &model.ProxyResponse{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(s.body)),
	}, nil
}

func newTestProxyHandler(up service.Upstream, mutate func(*model.HandlerConfig)) *ProxyHandler {
	cfg := model.HandlerConfig{
		Timeout:    time.Second,
		MaxRetries: 3,
		CORS:       cors.DefaultPolicy(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProxyHandler(service.NewForwarder(up, cfg, logger, nil), logger)
}

func TestProxyHandler_Handle_Success(t *testing.T) {
	up := &stubUpstream{
		status: http.StatusOK,
		header: http.Header{"Content-Type": {"application/json"}, "Etag": {`"abc"`}},
		body:   `{"data":[]}`,
	}
	h := newTestProxyHandler(up, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/games/v1/games?universeIds=1", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != `{"data":[]}` {
		t.Errorf("body = %q", rec.Body.String())
	}
	if v := rec.Header().Get("Etag"); v != `"abc"` {
		t.Errorf("Etag = %q, want upstream header", v)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Allow-Origin = %q, want %q", v, "*")
	}
	if len(up.urls) != 1 || up.urls[0] != "https://games.roblox.com/v1/games?universeIds=1" {
		t.Errorf("upstream urls = %q", up.urls)
	}
}

func TestProxyHandler_Handle_EscapedPathPreserved(t *testing.T) {
	up := &stubUpstream{status: http.StatusOK}
	h := newTestProxyHandler(up, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/catalog/v1/search/a%2Fb?q=x%20y", http.NoBody)
	rec := httptest.NewRecorder()

	if err := h.Handle(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(up.urls) != 1 || up.urls[0] != "https://catalog.roblox.com/v1/search/a%2Fb?q=x%20y" {
		t.Errorf("upstream urls = %q", up.urls)
	}
}

func TestProxyHandler_Handle_POSTBody(t *testing.T) {
	up := &stubUpstream{status: http.StatusOK}
	h := newTestProxyHandler(up, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/presence/v1/presence/users", strings.NewReader(`{"userIds":[1]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	if err := h.Handle(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(up.bodies) != 1 || up.bodies[0] != `{"userIds":[1]}` {
		t.Errorf("upstream bodies = %q", up.bodies)
	}
}

func TestProxyHandler_Handle_SynthesizedErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		header     http.Header
		up         *stubUpstream
		mutate     func(*model.HandlerConfig)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "invalid url",
			method:     http.MethodGet,
			target:     "/games",
			up:         &stubUpstream{status: http.StatusOK},
			wantStatus: http.StatusBadRequest,
			wantBody:   service.MsgInvalidURL,
		},
		{
			name:       "missing proxykey",
			method:     http.MethodGet,
			target:     "/games/v1/games",
			up:         &stubUpstream{status: http.StatusOK},
			mutate:     func(c *model.HandlerConfig) { c.SharedSecret = "k" },
			wantStatus: http.StatusProxyAuthRequired,
			wantBody:   service.MsgUnauthorized,
		},
		{
			name:       "connect failure",
			method:     http.MethodGet,
			target:     "/games/v1/games",
			up:         &stubUpstream{err: errors.New("connection reset by peer")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   service.MsgConnect,
		},
		{
			name:       "preflight skips auth",
			method:     http.MethodOptions,
			target:     "/games/v1/games",
			up:         &stubUpstream{status: http.StatusOK},
			mutate:     func(c *model.HandlerConfig) { c.SharedSecret = "k" },
			wantStatus: http.StatusNoContent,
			wantBody:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestProxyHandler(tt.up, tt.mutate)

			e := echo.New()
			req := httptest.NewRequest(tt.method, tt.target, http.NoBody)
			for k, v := range tt.header {
				req.Header[k] = v
			}
			rec := httptest.NewRecorder()

			if err := h.Handle(e.NewContext(req, rec)); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if v := rec.Header().Get("Access-Control-Allow-Methods"); v != cors.DefaultAllowMethods {
				t.Errorf("Allow-Methods = %q, want CORS headers on every response", v)
			}
		})
	}
}

func TestProxyHandler_Handle_ConnectFailureRetries(t *testing.T) {
	up := &stubUpstream{err: errors.New("dial tcp: i/o timeout")}
	h := newTestProxyHandler(up, func(c *model.HandlerConfig) { c.MaxRetries = 4 })

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/games/v1/games", http.NoBody)
	rec := httptest.NewRecorder()

	if err := h.Handle(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(up.urls) != 4 {
		t.Errorf("upstream attempts = %d, want 4", len(up.urls))
	}
}
