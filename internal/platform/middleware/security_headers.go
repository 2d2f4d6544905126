package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeadersConfig controls the transport-dependent headers.
type SecurityHeadersConfig struct {
	// HSTS adds Strict-Transport-Security. Only set it when the viewer is
	// reached over TLS, directly or through a terminating proxy.
	HSTS bool
}

// SecurityHeaders sets response headers for a JSON API serving PHI.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			// Deep links carry tokens in the query string until the first
			// redirect, so referrers are never sent.
			h.Set("Referrer-Policy", "no-referrer")
			// Library pages and bundles are patient data.
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")

			return next(c)
		}
	}
}
