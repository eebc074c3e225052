package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"rproxy-go/internal/model"
)

// NewErrorHandler renders errors raised outside the forwarder (body limit,
// rate limit, recovered panics) as plain text carrying the CORS headers, so
// they match the responses the proxy generates itself.
func NewErrorHandler(cfg model.HandlerConfig, logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if s, ok := he.Message.(string); ok {
				msg = s
			} else {
				msg = http.StatusText(code)
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed", "err", err, "path", c.Request().URL.Path)
		}

		header := c.Response().Header()
		for k, v := range cfg.CORS.Headers(nil, c.Request().Header) {
			header[k] = v
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.String(code, msg)
		}
		if err != nil {
			logger.Error("writing error response", "err", err)
		}
	}
}
