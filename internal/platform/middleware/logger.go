package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecr/ecrviewer/internal/platform/gate"
)

// Logger writes one line per request. Query strings are left out since
// search terms can carry patient names. Requests that passed the
// authorization gate also carry the mode that admitted them.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			rid, _ := c.Get("request_id").(string)
			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Func(func(e *zerolog.Event) {
					if st := gate.StateFrom(c); st != nil && st.Mode != gate.ModeNone {
						e.Str("auth_mode", string(st.Mode))
					}
				}).
				Msg("request")

			return nil
		}
	}
}
