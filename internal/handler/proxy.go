package handler

import (
	"io"
	"log/slog"

	"github.com/labstack/echo/v4"

	"rproxy-go/internal/model"
	"rproxy-go/internal/service"
)

// ProxyHandler binds the forwarding pipeline to Echo.
type ProxyHandler struct {
	forwarder *service.Forwarder
	logger    *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(fw *service.Forwarder, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		forwarder: fw,
		logger:    logger.With("component", "proxy_handler"),
	}
}

// Handle runs the request through the forwarder and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:      req.Context(),
		Method:   req.Method,
		Path:     req.URL.EscapedPath(),
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
		Body:     req.Body,
	}

	resp := h.forwarder.Handle(pr)
	defer func() { _ = resp.Body.Close() }()

	header := c.Response().Header()
	for key, vals := range resp.Header {
		header[key] = vals
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the body directly to the client. If io.Copy fails mid-stream
	// (client disconnect, upstream reset), the status code has already been
	// sent and the client receives a truncated response.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}
