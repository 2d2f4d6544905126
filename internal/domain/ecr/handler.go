package ecr

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the gated routes on g, which is rooted at the base
// path.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.Library)
	g.GET("/", h.Library)
	g.GET("/view-data", h.ViewData)
	g.GET("/api/conditions", h.ListConditions)
}

// RegisterPublicRoutes mounts the routes that bypass the gate.
func RegisterPublicRoutes(g *echo.Group) {
	g.GET("/error/:problem", ErrorPage)
}

func cookieLookup(c echo.Context) CookieLookup {
	return func(name string) (string, bool) {
		ck, err := c.Cookie(name)
		if err != nil {
			return "", false
		}
		return ck.Value, true
	}
}

func internalError(err error) error {
	return echo.NewHTTPError(http.StatusInternalServerError, "failed to load report data").SetInternal(err)
}

func (h *Handler) Library(c echo.Context) error {
	cfg := LibraryConfigFrom(c.QueryParams(), cookieLookup(c))
	page, err := h.svc.Library(c.Request().Context(), cfg)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) ViewData(c echo.Context) error {
	id := strings.TrimSpace(c.QueryParam("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}

	report, err := h.svc.ViewData(c.Request().Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "ecr not found")
	case errors.Is(err, ErrBundleNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "ecr bundle not found")
	case err != nil:
		return internalError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) ListConditions(c echo.Context) error {
	conds, err := h.svc.ListConditions(c.Request().Context())
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, map[string][]string{"conditions": listOrEmpty(conds)})
}

// ErrorPage serves the pages the gate redirects to when a request cannot be
// authorized.
func ErrorPage(c echo.Context) error {
	switch c.Param("problem") {
	case "auth":
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "auth",
			"message": "You are not authorized to view this page.",
		})
	default:
		return c.JSON(http.StatusNotFound, map[string]string{
			"error":   "notfound",
			"message": "The page you are looking for does not exist.",
		})
	}
}
