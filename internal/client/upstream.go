// Package client provides the pooled HTTP client used for upstream calls.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"rproxy-go/internal/config"
	"rproxy-go/internal/metrics"
	"rproxy-go/internal/model"
)

// UpstreamClient sends single requests to upstream hosts. It never retries;
// that belongs to the caller.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling.
// There is no client-wide timeout: each call is bounded by its context.
// m may be nil.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	return &UpstreamClient{
		httpClient: &http.Client{Transport: newTransport(cfg.Proxy.IdleConnections)},
		logger:     logger.With("component", "upstream_client"),
		metrics:    m,
	}
}

func newTransport(idle int) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        idle,
		MaxIdleConnsPerHost: idle,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		// No transparent gzip: Accept-Encoding stays off upstream requests and
		// bodies are relayed as received.
		DisableCompression: true,
	}
}

// DoStream sends one request and returns as soon as response headers arrive.
// ctx governs the whole exchange, body reads included. The caller must close
// the returned body.
func (c *UpstreamClient) DoStream(ctx context.Context, method, url string, header http.Header, body io.Reader) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	c.logger.Debug("upstream request", "method", method, "host", req.URL.Host, "path", req.URL.Path)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // ownership passes to the caller
	if err != nil {
		c.observe(method, nil, time.Since(start))
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	c.observe(method, resp, time.Since(start))

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

func (c *UpstreamClient) observe(method string, resp *http.Response, d time.Duration) {
	if c.metrics == nil {
		return
	}
	m := metrics.NormalizeMethod(method)
	c.metrics.UpstreamDuration.WithLabelValues(m).Observe(d.Seconds())
	if resp != nil {
		c.metrics.UpstreamResponses.WithLabelValues(m, strconv.Itoa(resp.StatusCode)).Inc()
	}
}
