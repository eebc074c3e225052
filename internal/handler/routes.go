package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rproxy-go/internal/config"
	"rproxy-go/internal/metrics"
)

const (
	healthzPath = "/healthz"
	statusPath  = "/_proxy/status"
)

// anyMethods mirrors the methods echo registers for Any.
var anyMethods = map[string]bool{
	http.MethodConnect: true, http.MethodDelete: true, http.MethodGet: true,
	http.MethodHead: true, http.MethodOptions: true, http.MethodPatch: true,
	http.MethodPost: true, http.MethodPut: true, http.MethodTrace: true,
	echo.PROPFIND: true, echo.REPORT: true,
}

// RegisterRoutes wires all route handlers onto the Echo instance.
// Static routes take precedence over the proxy wildcard.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler) {
	e.GET(healthzPath, health.Healthz)
	e.GET(statusPath, health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/*", proxy.Handle)
	e.Use(forwardOtherMethods(proxy.Handle))
}

// forwardOtherMethods hands requests whose method the router has no route for
// (PURGE, LINK, ...) to the proxy instead of answering 405. It is registered
// last so the rest of the middleware chain still wraps it.
func forwardOtherMethods(proxy echo.HandlerFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !anyMethods[c.Request().Method] {
				return proxy(c)
			}
			return next(c)
		}
	}
}

// ProxiedRequest reports whether a request is forwarded upstream rather than
// served by one of the operational routes. It fits echo's Skipper signature.
func ProxiedRequest(cfg *config.Config) func(echo.Context) bool {
	return func(c echo.Context) bool {
		req := c.Request()
		if req.Method != http.MethodGet {
			return true
		}
		switch req.URL.Path {
		case healthzPath, statusPath:
			return false
		}
		return !cfg.Metrics.Enabled || req.URL.Path != cfg.Metrics.Path
	}
}
