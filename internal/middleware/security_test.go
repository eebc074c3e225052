package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders_AddsHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders(nil))
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Get("X-Content-Type-Options"); v != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", v, "nosniff")
	}
	if v := rec.Header().Get("X-Frame-Options"); v != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", v, "DENY")
	}
}

func TestSecurityHeaders_HandlerOverrides(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders(nil))
	e.GET("/test", func(c echo.Context) error {
		c.Response().Header()["X-Frame-Options"] = []string{"SAMEORIGIN"}
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Get("X-Frame-Options"); v != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q, want %q", v, "SAMEORIGIN")
	}
}

func TestSecurityHeaders_LeavesRequestHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders(nil))

	var got http.Header
	e.GET("/test", func(c echo.Context) error {
		got = c.Request().Header.Clone()
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("Cookie", ".ROBLOSECURITY=abc")
	want := req.Header.Clone()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("request headers changed (-want +got):\n%s", diff)
	}
}

func TestSecurityHeaders_Skipper(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders(func(c echo.Context) bool {
		return c.Request().URL.Path != "/healthz"
	}))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/games/v1/games", func(c echo.Context) error { return c.String(http.StatusOK, "relayed") })

	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "nosniff"},
		{"/games/v1/games", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if v := rec.Header().Get("X-Content-Type-Options"); v != tt.want {
			t.Errorf("%s: X-Content-Type-Options = %q, want %q", tt.path, v, tt.want)
		}
	}
}
