package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecr/ecrviewer/internal/platform/gate"
)

// AuditEntry records one access to report data.
type AuditEntry struct {
	RequestID  string
	Mode       string // token or session
	Principal  string
	Action     string // list or view
	ReportID   string
	Path       string
	Method     string
	IPAddress  string
	UserAgent  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every request that reads report data: the library listing and
// the view-data route. It must run inside the gate so the authorization mode
// and principal are known. Search terms are never logged.
func Audit(logger zerolog.Logger, basePath string, recorder AuditRecorder) echo.MiddlewareFunc {
	basePath = strings.TrimRight(basePath, "/")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := auditAction(basePath, req.URL.Path)
			if action == "" {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Action:     action,
				Path:       req.URL.Path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: responseStatus(c, err),
				Timestamp:  time.Now().UTC(),
			}
			if action == "view" {
				entry.ReportID = c.QueryParam("id")
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			if st := gate.StateFrom(c); st != nil {
				entry.Mode = string(st.Mode)
				entry.Principal = st.Principal
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "report_access").
				Str("request_id", entry.RequestID).
				Str("mode", entry.Mode).
				Str("principal", entry.Principal).
				Str("action", entry.Action).
				Str("report_id", entry.ReportID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

// responseStatus is the status the client will see. A returned error has
// not been written yet; the outer error handler turns it into the response.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func auditAction(basePath, path string) string {
	rel, ok := strings.CutPrefix(path, basePath)
	if !ok {
		return ""
	}
	switch rel {
	case "", "/":
		return "list"
	case "/view-data":
		return "view"
	default:
		return ""
	}
}
