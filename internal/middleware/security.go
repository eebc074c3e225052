package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// defaultSecurityHeaders are set on the response before the handler runs.
var defaultSecurityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
}

// SecurityHeaders returns an Echo middleware that seeds default security
// headers on the response. Request headers are left untouched. Requests for
// which skip returns true get nothing; relayed upstream responses keep their
// own header set. A nil skip applies the headers everywhere.
func SecurityHeaders(skip echomw.Skipper) echo.MiddlewareFunc {
	if skip == nil {
		skip = echomw.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip(c) {
				return next(c)
			}
			h := c.Response().Header()
			for k, v := range defaultSecurityHeaders {
				h.Set(k, v)
			}
			return next(c)
		}
	}
}
