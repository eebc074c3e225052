package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"rproxy-go/internal/config"
	"rproxy-go/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Status              string `json:"status"`
	Version             string `json:"version"`
	UpstreamDomain      string `json:"upstream_domain"`
	TimeoutSeconds      int    `json:"timeout_seconds"`
	MaxRetries          int    `json:"max_retries"`
	StripPrefixSegments int    `json:"strip_prefix_segments"`
	AuthEnabled         bool   `json:"auth_enabled"`
}

// Status returns proxy status information. The shared secret itself is never exposed.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:              "ok",
		Version:             string(h.version),
		UpstreamDomain:      service.UpstreamDomain,
		TimeoutSeconds:      h.cfg.Proxy.TimeoutSeconds,
		MaxRetries:          h.cfg.Proxy.MaxRetries,
		StripPrefixSegments: h.cfg.Proxy.StripPrefixSegments,
		AuthEnabled:         h.cfg.Proxy.SharedSecret != "",
	})
}
